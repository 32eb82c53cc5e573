package flags

const (
	// Config is the path to the yaml config file.
	Config = "config"

	// LogLevel is the minimum application logging level.
	LogLevel = "loglevel"

	// LogFile writes application logs to a single file.
	LogFile = "logfile"

	// LogDirectory writes application logs to a rolling log in a directory.
	LogDirectory = "log-directory"

	// FeedBaseURL is the base URL of the update distribution endpoint.
	FeedBaseURL = "feed-base-url"

	// Channel selects the update channel (latest, beta, dev).
	Channel = "channel"

	// BetaID is the beta tester id appended to feed requests.
	BetaID = "beta-id"

	// ManagementAddr is the listen address of the local management API.
	ManagementAddr = "management-addr"

	// MetricsAddr is the listen address of the metrics endpoint.
	MetricsAddr = "metrics"

	// FeedServerAddr is the listen address of the development feed server.
	FeedServerAddr = "addr"

	// ReleaseDir is the directory the feed server serves installers from.
	ReleaseDir = "release-dir"

	// ServeVersion is the version the feed server advertises on the latest
	// channel.
	ServeVersion = "serve-version"

	// Notes is the release-notes text the feed server embeds in manifests.
	Notes = "notes"
)
