package feedserver

import "github.com/feverhq/feverd/updater"

// BetaTester maps a registered beta id to a display name and the update
// channels the tester may pull from.
type BetaTester struct {
	Name            string            `json:"name"`
	AllowedChannels []updater.Channel `json:"allowedChannels"`
}

// Static tester table, read-only at request time. This gating exists to
// exercise the beta UX during development; the production feed performs no
// such check.
var betaTesters = map[string]BetaTester{
	"BETA123": {
		Name:            "Ada Beta",
		AllowedChannels: []updater.Channel{updater.ChannelLatest, updater.ChannelBeta},
	},
	"BETA456": {
		Name:            "Grace Tester",
		AllowedChannels: []updater.Channel{updater.ChannelLatest, updater.ChannelBeta},
	},
	"DEV789": {
		Name:            "Linus Nightly",
		AllowedChannels: []updater.Channel{updater.ChannelLatest, updater.ChannelBeta, updater.ChannelDev},
	},
}

func lookupTester(id string) (BetaTester, bool) {
	tester, ok := betaTesters[id]
	return tester, ok
}

func (t BetaTester) allows(channel updater.Channel) bool {
	for _, allowed := range t.AllowedChannels {
		if allowed == channel {
			return true
		}
	}
	return false
}
