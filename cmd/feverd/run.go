package main

import (
	"context"
	"os"
	"sync"

	"github.com/facebookgo/grace/gracenet"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/feverhq/feverd/cmd/feverd/cliutil"
	"github.com/feverhq/feverd/cmd/feverd/flags"
	"github.com/feverhq/feverd/config"
	"github.com/feverhq/feverd/logger"
	"github.com/feverhq/feverd/management"
	"github.com/feverhq/feverd/metrics"
	"github.com/feverhq/feverd/updater"
)

func runCommand(bInfo *cliutil.BuildInfo, shutdownC, graceShutdownC chan struct{}) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the update agent",
		Description: `Starts the update coordinator, the local management API and the metrics
endpoint, and keeps them running until the process is asked to stop. With
FEVER_ENV=development no update checks are scheduled.`,
		Action: cliutil.WithErrorHandler(func(c *cli.Context) error {
			return runAgent(c, bInfo, shutdownC, graceShutdownC)
		}),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    flags.FeedBaseURL,
				Usage:   "Base URL of the update distribution endpoint",
				EnvVars: []string{"FEVER_FEED_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    flags.Channel,
				Usage:   "Update channel {latest, beta, dev}",
				EnvVars: []string{"FEVER_CHANNEL"},
			},
			&cli.StringFlag{
				Name:    flags.BetaID,
				Usage:   "Beta tester id carried on feed requests",
				EnvVars: []string{"FEVER_BETA_ID"},
			},
			&cli.StringFlag{
				Name:    flags.ManagementAddr,
				Usage:   "Listen address for the local management API",
				EnvVars: []string{"FEVER_MANAGEMENT_ADDR"},
			},
			&cli.StringFlag{
				Name:    flags.MetricsAddr,
				Usage:   "Listen address for the metrics endpoint",
				EnvVars: []string{"FEVER_METRICS_ADDR"},
			},
		}, cliutil.ConfigureLoggingFlags(true)...),
	}
}

func runAgent(c *cli.Context, bInfo *cliutil.BuildInfo, shutdownC, graceShutdownC chan struct{}) error {
	log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)
	bInfo.Log(log)

	root, fileManager, err := loadConfig(c, log)
	if err != nil {
		return err
	}
	applyFlagOverrides(c, &root)

	var wg sync.WaitGroup
	errC := make(chan error, 8)
	listeners := gracenet.Net{}

	targetPath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "cannot determine the path of the running binary")
	}

	// A successful install relaunches a new process; this copy then leaves.
	quit := func() {
		close(graceShutdownC)
	}

	feedService := updater.NewFeedService(bInfo.Version(), targetPath, &listeners, quit, log)
	relay := management.NewRelay()

	feed := updater.NewFeedConfig(root.Update.BaseURL)
	feed.SetChannel(root.Update.Channel)
	feed.SetBetaID(root.Update.BetaID)

	coordinator := updater.NewCoordinator(updater.CoordinatorConfig{
		Platform:       feedService,
		Feed:           feed,
		Publisher:      relay,
		Environment:    updater.EnvironmentFromProcess(),
		CurrentVersion: bInfo.Version(),
		Logger:         log,
	})

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go func() {
		<-shutdownC
		cancel()
	}()

	coordinator.Initialize(ctx)

	managementListener, err := listeners.Listen("tcp", root.Management.Addr)
	if err != nil {
		return errors.Wrap(err, "error opening management API listener")
	}
	defer managementListener.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc := management.New(coordinator, relay, bInfo.Version(), log)
		errC <- svc.Serve(managementListener, shutdownC)
	}()

	metricsListener, err := listeners.Listen("tcp", root.Metrics.Addr)
	if err != nil {
		return errors.Wrap(err, "error opening metrics server listener")
	}
	defer metricsListener.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errC <- metrics.ServeMetrics(metricsListener, shutdownC, log)
	}()

	if fileManager != nil {
		reloader := &updateReloader{
			coordinator: coordinator,
			log:         log,
			lastHash:    root.Update.Hash(),
		}
		go func() {
			if err := fileManager.Start(reloader); err != nil {
				log.Err(err).Msg("config watcher failed to start")
			}
		}()
		defer fileManager.Shutdown()
	}

	return waitToShutdown(&wg, errC, shutdownC, graceShutdownC, log)
}

// loadConfig reads the yaml config when one exists and wires a file manager
// for live reload. Without a config file the defaults are used and reload is
// disabled.
func loadConfig(c *cli.Context, log *zerolog.Logger) (config.Root, *config.FileManager, error) {
	configPath := config.ResolvePath(c.String(flags.Config))
	if configPath == "" {
		return config.DefaultRoot(), nil, nil
	}
	if ok, err := config.FileExists(configPath); err != nil || !ok {
		log.Info().Msgf("No config file found at %s, using defaults", configPath)
		return config.DefaultRoot(), nil, nil
	}

	watcher, err := config.NewFileWatcher()
	if err != nil {
		return config.Root{}, nil, errors.Wrap(err, "cannot create config watcher")
	}
	fileManager, err := config.NewFileManager(watcher, configPath, log)
	if err != nil {
		return config.Root{}, nil, errors.Wrap(err, "cannot watch config file")
	}
	root, err := fileManager.GetConfig()
	if err != nil {
		return config.Root{}, nil, errors.Wrap(err, "cannot read config file")
	}
	return root, fileManager, nil
}

func applyFlagOverrides(c *cli.Context, root *config.Root) {
	if v := c.String(flags.FeedBaseURL); v != "" {
		root.Update.BaseURL = v
	}
	if v := c.String(flags.Channel); v != "" {
		root.Update.Channel = v
	}
	if v := c.String(flags.BetaID); v != "" {
		root.Update.BetaID = v
	}
	if v := c.String(flags.ManagementAddr); v != "" {
		root.Management.Addr = v
	}
	if v := c.String(flags.MetricsAddr); v != "" {
		root.Metrics.Addr = v
	}
}

// updateReloader re-points the coordinator when the config file's update
// section changes.
type updateReloader struct {
	coordinator *updater.Coordinator
	log         *zerolog.Logger
	lastHash    string
}

func (u *updateReloader) ConfigDidUpdate(root config.Root) {
	hash := root.Update.Hash()
	if hash == u.lastHash {
		return
	}
	u.lastHash = hash

	if result := u.coordinator.SetChannel(root.Update.Channel); !result.Success {
		u.log.Error().Msgf("config reload could not switch channel: %s", result.Error)
		return
	}
	if result := u.coordinator.SetBetaID(root.Update.BetaID); !result.Success {
		u.log.Error().Msgf("config reload could not set beta id: %s", result.Error)
	}
}
