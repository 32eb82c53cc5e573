package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/feverhq/feverd/cmd/feverd/cliutil"
	"github.com/feverhq/feverd/cmd/feverd/flags"
	"github.com/feverhq/feverd/config"
	"github.com/feverhq/feverd/logger"
	"github.com/feverhq/feverd/updater"
)

// statusSuccess implements the ExitCoder interface, the app exits with
// status code 11 when the binary was updated.
// https://pkg.go.dev/github.com/urfave/cli/v2?tab=doc#ExitCoder
type statusSuccess struct {
	newVersion string
}

func (u *statusSuccess) Error() string {
	return fmt.Sprintf("feverd has been updated to version %s", u.newVersion)
}

func (u *statusSuccess) ExitCode() int {
	return 11
}

// statusErr implements the ExitCoder interface, the app exits with status
// code 10 when the update failed.
type statusErr struct {
	err error
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("failed to update feverd: %v", e.err)
}

func (e *statusErr) ExitCode() int {
	return 10
}

func updateCommand(bInfo *cliutil.BuildInfo) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update the agent if a new version exists",
		ArgsUsage: " ",
		Description: `Checks the release feed once. If a newer version exists, downloads it,
swaps the binary in place and quits. Otherwise, does nothing.

To determine the outcome in a script, check the exit code: 11 means the
binary was updated, 10 means the update failed.`,
		Action: cliutil.WithErrorHandler(func(c *cli.Context) error {
			return update(c, bInfo)
		}),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    flags.FeedBaseURL,
				Usage:   "Base URL of the update distribution endpoint",
				Value:   config.DefaultFeedBaseURL,
				EnvVars: []string{"FEVER_FEED_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    flags.Channel,
				Usage:   "Update channel {latest, beta, dev}",
				Value:   config.DefaultChannel,
				EnvVars: []string{"FEVER_CHANNEL"},
			},
			&cli.StringFlag{
				Name:    flags.BetaID,
				Usage:   "Beta tester id carried on feed requests",
				EnvVars: []string{"FEVER_BETA_ID"},
			},
		}, cliutil.ConfigureLoggingFlags(true)...),
	}
}

// update is the handler for the update command from the command line
func update(c *cli.Context, bInfo *cliutil.BuildInfo) error {
	log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)

	targetPath, err := os.Executable()
	if err != nil {
		return &statusErr{err}
	}

	feed := updater.NewFeedConfig(c.String(flags.FeedBaseURL))
	feed.SetChannel(c.String(flags.Channel))
	feed.SetBetaID(c.String(flags.BetaID))

	service := updater.NewFeedService(bInfo.Version(), targetPath, nil, nil, log)
	if err := service.SetFeedURL(feed.FeedURL()); err != nil {
		return &statusErr{err}
	}

	log.Info().Msgf("checking %s for a newer version than %s", feed.FeedURL(), bInfo.Version())
	info, err := service.CheckAndStage()
	if err != nil {
		return &statusErr{err}
	}
	if info == nil {
		log.Info().Msgf("feverd is up to date (%s)", bInfo.Version())
		return nil
	}

	if err := service.QuitAndInstall(updater.InstallOptions{}); err != nil {
		return &statusErr{err}
	}
	return &statusSuccess{newVersion: info.Version}
}
