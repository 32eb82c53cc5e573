package config

import (
	"os"
	"path/filepath"
	"runtime"

	homedir "github.com/mitchellh/go-homedir"
)

const (
	// DefaultFeedBaseURL is the production update feed.
	DefaultFeedBaseURL = "https://releases.fever.audio"
	// DefaultChannel is the update channel used when none is configured.
	DefaultChannel = "latest"
	// DefaultManagementAddr is where the local management API listens.
	DefaultManagementAddr = "127.0.0.1:20241"
	// DefaultMetricsAddr is where the Prometheus endpoint listens.
	DefaultMetricsAddr = "127.0.0.1:20242"
	// DefaultFeedServerAddr is where the development feed server listens.
	DefaultFeedServerAddr = "127.0.0.1:20243"

	defaultConfigFile = "config.yml"
)

// DefaultConfigDirectory returns the platform specific directory that holds
// the feverd config file.
func DefaultConfigDirectory() string {
	if path := os.Getenv("FEVERD_HOME"); path != "" {
		return path
	}
	if runtime.GOOS == "windows" {
		path := filepath.Join(os.Getenv("AppData"), "fever")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return ""
		}
		return path
	}
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fever")
}

// ResolvePath expands a leading tilde in a user-supplied path. Paths that
// cannot be expanded are returned unchanged.
func ResolvePath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// DefaultLogDirectory returns the directory logs are written to when no
// logDirectory is configured.
func DefaultLogDirectory() string {
	dir := DefaultConfigDirectory()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "logs")
}

// DefaultConfigSearchDirectories lists the directories probed for a config
// file, in priority order.
func DefaultConfigSearchDirectories() []string {
	dirs := []string{DefaultConfigDirectory()}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/etc/fever", "/usr/local/etc/fever")
	}
	return dirs
}

// FileExists checks to see if a file exist at the provided path.
func FileExists(path string) (bool, error) {
	f, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !f.IsDir(), nil
}

// FindDefaultConfigPath returns the first config file found in the search
// directories, or empty when none exists.
func FindDefaultConfigPath() string {
	for _, configDir := range DefaultConfigSearchDirectories() {
		if configDir == "" {
			continue
		}
		path := filepath.Join(configDir, defaultConfigFile)
		if ok, _ := FileExists(path); ok {
			return path
		}
	}
	return ""
}

// DefaultRoot returns the configuration used when no config file exists.
func DefaultRoot() Root {
	var config Root
	applyDefaults(&config)
	return config
}

// applyDefaults fills in the fields a config file may omit.
func applyDefaults(config *Root) {
	if config.Update.BaseURL == "" {
		config.Update.BaseURL = DefaultFeedBaseURL
	}
	if config.Update.Channel == "" {
		config.Update.Channel = DefaultChannel
	}
	if config.Management.Addr == "" {
		config.Management.Addr = DefaultManagementAddr
	}
	if config.Metrics.Addr == "" {
		config.Metrics.Addr = DefaultMetricsAddr
	}
	if config.FeedServer.Addr == "" {
		config.FeedServer.Addr = DefaultFeedServerAddr
	}
}
