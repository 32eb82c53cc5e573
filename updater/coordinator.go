package updater

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultInitialCheckDelay is the grace period after initialization before
	// the first scheduled check fires, so app startup can settle.
	DefaultInitialCheckDelay = 10 * time.Second
	// DefaultCheckInterval is how often scheduled checks recur.
	DefaultCheckInterval = time.Hour
)

// Result is the response shape of every coordinator request operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// CheckOptions are the options a manual check request may carry.
type CheckOptions struct {
	// BetaID, when set, is merged into the feed configuration before the
	// check is triggered.
	BetaID string `json:"betaId,omitempty"`
}

// CoordinatorConfig collects the collaborators of a Coordinator. Platform and
// Feed are required; everything else has a usable default.
type CoordinatorConfig struct {
	Platform       Platform
	Feed           *FeedConfig
	Publisher      StatusPublisher
	Prompter       Prompter
	Environment    Environment
	CurrentVersion string
	Logger         *zerolog.Logger

	// Scheduling overrides, used by tests. Zero means the default.
	InitialCheckDelay time.Duration
	CheckInterval     time.Duration
}

// Coordinator owns the update lifecycle of one running application instance.
// It bridges the platform auto-update primitive to the rest of the app: it
// holds the feed configuration, runs the check schedule, translates platform
// events into status broadcasts, and answers the UI's update requests.
//
// Each coordinator carries its own feed state, so independent instances (for
// example in tests) never contaminate each other.
type Coordinator struct {
	platform       Platform
	publisher      StatusPublisher
	prompter       Prompter
	env            Environment
	currentVersion string
	log            *zerolog.Logger

	mu   sync.Mutex
	feed *FeedConfig

	initialDelay time.Duration
	interval     time.Duration

	// Scheduled checks are serialized against each other: the ticker skips a
	// round while a previous scheduled check has not reached a terminal
	// event. Manual checks are intentionally not serialized against anything;
	// overlapping event streams interleave on the status channel.
	scheduledInFlight atomic.Bool

	initialized atomic.Bool
}

func NewCoordinator(config CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		platform:       config.Platform,
		publisher:      config.Publisher,
		prompter:       config.Prompter,
		env:            config.Environment,
		currentVersion: config.CurrentVersion,
		log:            config.Logger,
		feed:           config.Feed,
		initialDelay:   config.InitialCheckDelay,
		interval:       config.CheckInterval,
	}
	if c.log == nil {
		nop := zerolog.Nop()
		c.log = &nop
	}
	if c.prompter == nil {
		c.prompter = NewConsolePrompter(c.log)
	}
	if c.initialDelay == 0 {
		c.initialDelay = DefaultInitialCheckDelay
	}
	if c.interval == 0 {
		c.interval = DefaultCheckInterval
	}
	return c
}

// Initialize registers the feed URL and event handlers with the platform
// primitive and starts the check schedule. In development builds it returns
// immediately: updates are never checked in dev.
//
// Initialization failures are logged and swallowed; the app must keep running
// without update capability rather than crash.
func (c *Coordinator) Initialize(ctx context.Context) {
	if c.env.IsDevelopment() {
		c.log.Debug().Msg("development build, skipping update checks")
		return
	}
	if err := c.initialize(ctx); err != nil {
		c.log.Error().Msgf("update coordinator initialization failed, continuing without updates: %+v", err)
	}
}

func (c *Coordinator) initialize(ctx context.Context) error {
	c.mu.Lock()
	feedURL := c.feed.FeedURL()
	c.mu.Unlock()

	if err := c.platform.SetFeedURL(feedURL); err != nil {
		return errors.Wrap(err, "unable to register feed URL")
	}

	c.platform.Subscribe(Handlers{
		OnAvailable:    c.handleAvailable,
		OnProgress:     c.handleProgress,
		OnDownloaded:   c.handleDownloaded,
		OnNotAvailable: c.handleNotAvailable,
		OnError:        c.handleError,
	})

	c.initialized.Store(true)
	go c.runSchedule(ctx)
	return nil
}

// Initialized reports whether Initialize completed its setup. It stays false
// for development builds and after a swallowed initialization failure.
func (c *Coordinator) Initialized() bool {
	return c.initialized.Load()
}

// Feed returns a snapshot of the current distribution configuration.
func (c *Coordinator) Feed() (channel Channel, betaID, feedURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.Channel(), c.feed.BetaID(), c.feed.FeedURL()
}

// runSchedule fires the first check after the startup grace period, then on
// every interval tick for the life of the process.
func (c *Coordinator) runSchedule(ctx context.Context) {
	initial := time.NewTimer(c.initialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	c.scheduledCheck()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scheduledCheck()
		}
	}
}

func (c *Coordinator) scheduledCheck() {
	if !c.scheduledInFlight.CompareAndSwap(false, true) {
		c.log.Debug().Msg("previous scheduled update check still in flight, skipping this round")
		return
	}
	c.publish(StatusEvent{Status: StatusChecking})
	if err := c.platform.CheckForUpdates(); err != nil {
		c.scheduledInFlight.Store(false)
		c.log.Error().Msgf("scheduled update check failed: %s", err)
		c.publish(StatusEvent{Status: StatusError, Error: err.Error()})
	}
}

// CheckForUpdates handles a manual check request from the UI. A beta id
// supplied with the request is merged into the feed configuration, and the
// feed URL recomputed, before the check is triggered.
func (c *Coordinator) CheckForUpdates(opts CheckOptions) Result {
	if opts.BetaID != "" {
		c.mu.Lock()
		feedURL := c.feed.SetBetaID(opts.BetaID)
		c.mu.Unlock()
		if err := c.platform.SetFeedURL(feedURL); err != nil {
			return failure(err)
		}
	}

	c.publish(StatusEvent{Status: StatusChecking})
	if err := c.platform.CheckForUpdates(); err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

// SetChannel points the coordinator at a different update track and
// re-registers the resulting feed URL with the platform primitive.
// Unrecognized channel names fall back to the latest track; that is a
// successful request, not an error.
func (c *Coordinator) SetChannel(channel string) Result {
	c.mu.Lock()
	feedURL := c.feed.SetChannel(channel)
	c.mu.Unlock()

	if err := c.platform.SetFeedURL(feedURL); err != nil {
		return failure(err)
	}
	c.log.Info().Msgf("update channel set to %s (%s)", ParseChannel(channel), feedURL)
	return Result{Success: true}
}

// SetBetaID stores a beta tester id on the feed configuration and
// re-registers the resulting feed URL. An empty id removes the parameter.
func (c *Coordinator) SetBetaID(betaID string) Result {
	c.mu.Lock()
	feedURL := c.feed.SetBetaID(betaID)
	c.mu.Unlock()

	if err := c.platform.SetFeedURL(feedURL); err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

// QuitAndInstall restarts into the downloaded update with a silent relaunch,
// without waiting for other running instances.
func (c *Coordinator) QuitAndInstall() Result {
	err := c.platform.QuitAndInstall(InstallOptions{
		SilentRelaunch: true,
		ForceClose:     true,
	})
	if err != nil {
		c.log.Error().Msgf("quit and install failed: %s", err)
		return failure(err)
	}
	return Result{Success: true}
}

func (c *Coordinator) publish(event StatusEvent) {
	if c.publisher != nil {
		c.publisher.Publish(event)
	}
}
