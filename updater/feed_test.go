package updater

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://releases.fever.audio"

func TestChannelMappingIsTotal(t *testing.T) {
	canonical := map[string]string{
		"latest": testBaseURL + "/update/latest",
		"beta":   testBaseURL + "/update/beta",
		"dev":    testBaseURL + "/update/dev",
	}

	inputs := []struct {
		channel string
		wantURL string
	}{
		{"latest", canonical["latest"]},
		{"beta", canonical["beta"]},
		{"dev", canonical["dev"]},
		{"BETA", canonical["beta"]},
		{" dev ", canonical["dev"]},
		{"", canonical["latest"]},
		{"nightly", canonical["latest"]},
		{"stable", canonical["latest"]},
		{"🦄", canonical["latest"]},
	}

	for _, input := range inputs {
		fc := NewFeedConfig(testBaseURL)
		got := fc.SetChannel(input.channel)
		assert.Equal(t, input.wantURL, got, "channel %q", input.channel)
	}
}

func TestDefaultChannelIsLatest(t *testing.T) {
	fc := NewFeedConfig(testBaseURL)
	require.Equal(t, ChannelLatest, fc.Channel())
	require.Equal(t, testBaseURL+"/update/latest", fc.FeedURL())
}

func TestBetaIDRoundTrip(t *testing.T) {
	fc := NewFeedConfig(testBaseURL)
	fc.SetBetaID("BETA123")

	// the id survives repeated channel changes without stacking duplicates
	for _, channel := range []string{"beta", "dev", "latest", "beta", "beta"} {
		got := fc.SetChannel(channel)
		want := fmt.Sprintf("%s/update/%s?betaId=BETA123", testBaseURL, ParseChannel(channel))
		require.Equal(t, want, got)
	}
}

func TestBetaIDReplacedNotStacked(t *testing.T) {
	fc := NewFeedConfig(testBaseURL)
	fc.SetBetaID("BETA123")
	got := fc.SetBetaID("BETA456")
	require.Equal(t, testBaseURL+"/update/latest?betaId=BETA456", got)
}

func TestTrailingSlashBaseURL(t *testing.T) {
	fc := NewFeedConfig(testBaseURL + "/")
	require.Equal(t, testBaseURL+"/update/latest", fc.FeedURL())
}
