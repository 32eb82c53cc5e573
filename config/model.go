package config

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// UpdateConfig selects the update feed the daemon polls.
type UpdateConfig struct {
	BaseURL string `json:"base_url" yaml:"baseURL,omitempty"`
	Channel string `json:"channel" yaml:"channel,omitempty"`
	BetaID  string `json:"beta_id" yaml:"betaID,omitempty"`
}

// ManagementConfig configures the local management API.
type ManagementConfig struct {
	Addr string `json:"addr" yaml:"addr,omitempty"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr,omitempty"`
}

// FeedServerConfig configures the development feed server.
type FeedServerConfig struct {
	Addr       string `json:"addr" yaml:"addr,omitempty"`
	ReleaseDir string `json:"release_dir" yaml:"releaseDir,omitempty"`
	Version    string `json:"version" yaml:"version,omitempty"`
	Notes      string `json:"notes" yaml:"notes,omitempty"`
}

// Root is the base options to configure the service.
type Root struct {
	LogDirectory string           `json:"log_directory" yaml:"logDirectory,omitempty"`
	LogLevel     string           `json:"log_level" yaml:"logLevel,omitempty"`
	Update       UpdateConfig     `json:"update,omitempty" yaml:"update,omitempty"`
	Management   ManagementConfig `json:"management,omitempty" yaml:"management,omitempty"`
	Metrics      MetricsConfig    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	FeedServer   FeedServerConfig `json:"feed_server,omitempty" yaml:"feedServer,omitempty"`
}

// Hash returns the computed values to see if the update selection changed
func (u *UpdateConfig) Hash() string {
	h := sha256.New()
	_, _ = io.WriteString(h, u.BaseURL)
	_, _ = io.WriteString(h, u.Channel)
	_, _ = io.WriteString(h, u.BetaID)
	return fmt.Sprintf("%x", h.Sum(nil))
}
