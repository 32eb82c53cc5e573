package cliutil

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

type BuildInfo struct {
	GoOS          string `json:"go_os"`
	GoVersion     string `json:"go_version"`
	GoArch        string `json:"go_arch"`
	BuildType     string `json:"build_type"`
	FeverdVersion string `json:"feverd_version"`
}

func GetBuildInfo(buildType, version string) *BuildInfo {
	return &BuildInfo{
		GoOS:          runtime.GOOS,
		GoVersion:     runtime.Version(),
		GoArch:        runtime.GOARCH,
		BuildType:     buildType,
		FeverdVersion: version,
	}
}

func (bi *BuildInfo) Log(log *zerolog.Logger) {
	log.Info().Msgf("Version %s", bi.FeverdVersion)
	if bi.BuildType != "" {
		log.Info().Msgf("Built with %s", bi.BuildType)
	}
	log.Info().Msgf("GOOS: %s, GOVersion: %s, GoArch: %s", bi.GoOS, bi.GoVersion, bi.GoArch)
}

func (bi *BuildInfo) OSArch() string {
	return fmt.Sprintf("%s_%s", bi.GoOS, bi.GoArch)
}

func (bi *BuildInfo) Version() string {
	return bi.FeverdVersion
}

func (bi *BuildInfo) UserAgent() string {
	return fmt.Sprintf("feverd/%s", bi.FeverdVersion)
}
