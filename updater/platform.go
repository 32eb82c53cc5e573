package updater

// Status is the externally visible state of the current check or download
// cycle. Exactly one value is active at a time; it is broadcast, never
// persisted.
type Status string

const (
	StatusChecking     Status = "checking"
	StatusAvailable    Status = "available"
	StatusNotAvailable Status = "not-available"
	StatusDownloading  Status = "downloading"
	StatusDownloaded   Status = "downloaded"
	StatusError        Status = "error"
)

// Info describes the release a platform event refers to.
type Info struct {
	Version     string `json:"version,omitempty"`
	ReleaseName string `json:"releaseName,omitempty"`
	Notes       string `json:"notes,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

// Progress reports the state of an in-flight download.
type Progress struct {
	Percent        float64 `json:"percent"`
	BytesPerSecond float64 `json:"bytesPerSecond"`
	Total          int64   `json:"total"`
	Transferred    int64   `json:"transferred"`
}

// StatusEvent is one message on the update-status channel.
type StatusEvent struct {
	Status   Status    `json:"status"`
	Info     *Info     `json:"info,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// StatusPublisher fans status events out to whatever UI surfaces are
// attached. Implementations must not block; an event with no listener is
// dropped.
type StatusPublisher interface {
	Publish(StatusEvent)
}

// Handlers receives the platform-level update events. Any handler left nil is
// simply not invoked.
type Handlers struct {
	OnAvailable    func(Info)
	OnProgress     func(Progress)
	OnDownloaded   func(Info)
	OnNotAvailable func(Info)
	OnError        func(error)
}

// InstallOptions control the relaunch performed by QuitAndInstall.
type InstallOptions struct {
	// SilentRelaunch restarts into the new version without first-run prompts.
	SilentRelaunch bool
	// ForceClose installs without asking other running instances to close.
	ForceClose bool
}

// Platform abstracts the host auto-update primitive so the coordinator can be
// driven by a fake implementation instead of a real updater.
type Platform interface {
	// SetFeedURL registers the manifest endpoint subsequent checks poll.
	SetFeedURL(url string) error
	// CheckForUpdates triggers a check against the registered feed URL. The
	// trigger is synchronous; the network round-trip is not, and its outcome
	// arrives through the subscribed Handlers.
	CheckForUpdates() error
	// QuitAndInstall exits the running application and launches the staged
	// update.
	QuitAndInstall(opts InstallOptions) error
	// Subscribe installs the event handlers. At most one set of handlers is
	// active; a second call replaces the first.
	Subscribe(handlers Handlers)
}
