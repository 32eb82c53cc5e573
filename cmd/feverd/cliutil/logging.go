package cliutil

import (
	"github.com/urfave/cli/v2"

	"github.com/feverhq/feverd/cmd/feverd/flags"
)

func ConfigureLoggingFlags(shouldHide bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flags.LogLevel,
			Value:   "info",
			Usage:   "Application logging level {debug, info, warn, error, fatal}",
			EnvVars: []string{"FEVER_LOGLEVEL"},
			Hidden:  shouldHide,
		},
		&cli.StringFlag{
			Name:    flags.LogFile,
			Usage:   "Save application log to this file for reporting issues.",
			EnvVars: []string{"FEVER_LOGFILE"},
			Hidden:  shouldHide,
		},
		&cli.StringFlag{
			Name:    flags.LogDirectory,
			Usage:   "Save application log to this directory for reporting issues.",
			EnvVars: []string{"FEVER_LOGDIRECTORY"},
			Hidden:  shouldHide,
		},
	}
}
