package updater

import (
	"net/url"
	"strings"
)

// Channel is a named update track served by the Fever release feed.
type Channel string

const (
	ChannelLatest Channel = "latest"
	ChannelBeta   Channel = "beta"
	ChannelDev    Channel = "dev"
)

// BetaIDParam is the query parameter key carrying a registered beta tester id
// on manifest requests.
const BetaIDParam = "betaId"

// ParseChannel maps a raw channel name to a known update track. Unrecognized
// values fall back to the latest track instead of erroring, so a stale or
// mistyped preference can never wedge the updater.
func ParseChannel(s string) Channel {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelBeta:
		return ChannelBeta
	case ChannelDev:
		return ChannelDev
	default:
		return ChannelLatest
	}
}

// FeedConfig is the distribution configuration of a single coordinator
// instance: which track it follows, the optional beta tester id, and the
// manifest endpoint derived from both. The feed URL is recomputed on every
// mutation and can never disagree with the channel.
type FeedConfig struct {
	baseURL string
	channel Channel
	betaID  string
	feedURL string
}

// NewFeedConfig creates a feed configuration pointed at the latest track of
// the given distribution endpoint, e.g. https://releases.fever.audio.
func NewFeedConfig(baseURL string) *FeedConfig {
	fc := &FeedConfig{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		channel: ChannelLatest,
	}
	fc.recompute()
	return fc
}

func (fc *FeedConfig) Channel() Channel { return fc.channel }

func (fc *FeedConfig) BetaID() string { return fc.betaID }

// FeedURL returns the manifest endpoint for the active channel, with the beta
// tester id appended when one is registered.
func (fc *FeedConfig) FeedURL() string { return fc.feedURL }

// SetChannel points the feed at the given track and returns the new feed URL.
func (fc *FeedConfig) SetChannel(channel string) string {
	fc.channel = ParseChannel(channel)
	fc.recompute()
	return fc.feedURL
}

// SetBetaID registers a beta tester id to be carried on every manifest
// request and returns the new feed URL.
func (fc *FeedConfig) SetBetaID(betaID string) string {
	fc.betaID = betaID
	fc.recompute()
	return fc.feedURL
}

func (fc *FeedConfig) recompute() {
	feedURL := fc.baseURL + "/update/" + string(fc.channel)
	if fc.betaID != "" {
		q := url.Values{}
		q.Set(BetaIDParam, fc.betaID)
		// url.Values replaces rather than appends, so repeated channel or
		// beta id changes never stack duplicate query parameters.
		feedURL += "?" + q.Encode()
	}
	fc.feedURL = feedURL
}
