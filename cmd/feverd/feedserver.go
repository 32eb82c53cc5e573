package main

import (
	"net"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/feverhq/feverd/cmd/feverd/cliutil"
	"github.com/feverhq/feverd/cmd/feverd/flags"
	"github.com/feverhq/feverd/config"
	"github.com/feverhq/feverd/feedserver"
	"github.com/feverhq/feverd/logger"
)

func feedServerCommand(shutdownC chan struct{}) *cli.Command {
	return &cli.Command{
		Name:  "feedserver",
		Usage: "Run a local update feed for development",
		Description: `Serves update manifests and installer downloads the way the production
distribution endpoint does, including per-channel versions, beta tester
gating and resumable downloads. Point a development agent at it with
--feed-base-url.`,
		Action: cliutil.WithErrorHandler(func(c *cli.Context) error {
			return runFeedServer(c, shutdownC)
		}),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    flags.FeedServerAddr,
				Usage:   "Listen address for the feed server",
				Value:   config.DefaultFeedServerAddr,
				EnvVars: []string{"FEVER_FEEDSERVER_ADDR"},
			},
			&cli.StringFlag{
				Name:    flags.ReleaseDir,
				Usage:   "Directory containing the installer files to serve",
				Value:   "releases",
				EnvVars: []string{"FEVER_FEEDSERVER_RELEASE_DIR"},
			},
			&cli.StringFlag{
				Name:    flags.ServeVersion,
				Usage:   "Version advertised on the latest channel",
				Value:   "1.0.0",
				EnvVars: []string{"FEVER_FEEDSERVER_VERSION"},
			},
			&cli.StringFlag{
				Name:    flags.Notes,
				Usage:   "Release notes embedded in manifests",
				Value:   "Bug fixes and performance improvements.",
				EnvVars: []string{"FEVER_FEEDSERVER_NOTES"},
			},
		}, cliutil.ConfigureLoggingFlags(true)...),
	}
}

func runFeedServer(c *cli.Context, shutdownC chan struct{}) error {
	log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)

	listener, err := net.Listen("tcp", c.String(flags.FeedServerAddr))
	if err != nil {
		return errors.Wrap(err, "error opening feed server listener")
	}
	defer listener.Close()

	errC := make(chan error, 1)
	go func() {
		errC <- feedserver.Serve(feedserver.Config{
			Version:    c.String(flags.ServeVersion),
			Notes:      c.String(flags.Notes),
			ReleaseDir: c.String(flags.ReleaseDir),
		}, listener, shutdownC, log)
	}()

	graceShutdownC := make(chan struct{})
	return waitForSignal(errC, shutdownC, graceShutdownC, log)
}
