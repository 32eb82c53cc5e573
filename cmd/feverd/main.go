package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/feverhq/feverd/cmd/feverd/cliutil"
	"github.com/feverhq/feverd/cmd/feverd/flags"
	"github.com/feverhq/feverd/cmd/feverd/tail"
	"github.com/feverhq/feverd/config"
	"github.com/feverhq/feverd/metrics"
)

const versionText = "Print the version"

var (
	Version   = "DEV"
	BuildTime = "unknown"
	BuildType = ""
)

func main() {
	metrics.RegisterBuildInfo(BuildTime, Version)
	bInfo := cliutil.GetBuildInfo(BuildType, Version)

	// Force shutdown channel used by the app. When closed, app must terminate.
	shutdownC := make(chan struct{})
	// Graceful shutdown channel used by the app. When closed, app stops
	// accepting new work and terminates once in-flight work drains.
	graceShutdownC := make(chan struct{})

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v", "V"},
		Usage:   versionText,
	}

	app := &cli.App{}
	app.Name = "feverd"
	app.Usage = "Fever's update agent"
	app.UsageText = "feverd [global options] [command] [command options]"
	app.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	app.Description = `feverd keeps a Fever installation up to date. It polls the release feed on a
   schedule, downloads and stages new builds, and exposes a local management
   API the desktop app talks to for manual checks, channel switches and
   install requests.`
	app.Flags = runFlags()
	app.Commands = commands(cli.ShowVersion, bInfo, shutdownC, graceShutdownC)

	tail.Init(bInfo)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commands(version func(c *cli.Context), bInfo *cliutil.BuildInfo, shutdownC, graceShutdownC chan struct{}) []*cli.Command {
	cmds := []*cli.Command{
		runCommand(bInfo, shutdownC, graceShutdownC),
		feedServerCommand(shutdownC),
		updateCommand(bInfo),
		tail.Command(),
		{
			Name: "version",
			Action: func(c *cli.Context) (err error) {
				version(c)
				return nil
			},
			Usage:       versionText,
			Description: versionText,
		},
	}
	return cmds
}

func runFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:    flags.Config,
			Usage:   "Specifies a config file in YAML format.",
			Value:   config.FindDefaultConfigPath(),
			EnvVars: []string{"FEVER_CONFIG"},
		},
	}, cliutil.ConfigureLoggingFlags(false)...)
}
