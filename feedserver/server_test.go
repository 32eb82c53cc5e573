package feedserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feverhq/feverd/updater"
)

func newTestServer(t *testing.T, version string) (*httptest.Server, string) {
	t.Helper()
	releaseDir := t.TempDir()
	log := zerolog.Nop()
	server := New(Config{
		Version:    version,
		Notes:      "test release",
		PubDate:    "2024-01-15T00:00:00Z",
		ReleaseDir: releaseDir,
	}, &log)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts, releaseDir
}

func getManifest(t *testing.T, url string) (int, updater.Manifest) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var manifest updater.Manifest
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&manifest))
	}
	return resp.StatusCode, manifest
}

func TestManifestChannelVersions(t *testing.T) {
	ts, _ := newTestServer(t, "2.3.4")

	status, latest := getManifest(t, ts.URL+"/update/latest")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2.3.4", latest.Version)
	assert.Equal(t, "test release", latest.Notes)
	assert.Equal(t, "2024-01-15T00:00:00Z", latest.PubDate)

	status, beta := getManifest(t, ts.URL+"/update/beta")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2.4.0", beta.Version)

	status, dev := getManifest(t, ts.URL+"/update/dev")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3.0.0", dev.Version)
}

func TestManifestUnknownChannelFallsBackToLatest(t *testing.T) {
	ts, _ := newTestServer(t, "2.3.4")

	status, manifest := getManifest(t, ts.URL+"/update/nightly")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2.3.4", manifest.Version)
}

func TestManifestRootAliases(t *testing.T) {
	ts, _ := newTestServer(t, "1.0.0")

	for _, path := range []string{"/update", "/fever-update.json"} {
		status, manifest := getManifest(t, ts.URL+path)
		require.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "1.0.0", manifest.Version, path)
	}
}

func TestManifestRootAliasesHonorBetaID(t *testing.T) {
	ts, _ := newTestServer(t, "2.3.4")

	// the aliases serve the latest channel, which is never gated, so any
	// beta id passes through the shared manifest path
	for _, path := range []string{"/update", "/fever-update.json"} {
		status, manifest := getManifest(t, ts.URL+path+"?"+updater.BetaIDParam+"=UNKNOWN")
		require.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "2.3.4", manifest.Version, path)

		status, _ = getManifest(t, ts.URL+path+"?"+updater.BetaIDParam+"=BETA123")
		require.Equal(t, http.StatusOK, status, path)
	}
}

func TestManifestDownloadURLsUseRequestHost(t *testing.T) {
	ts, _ := newTestServer(t, "1.2.3")

	_, manifest := getManifest(t, ts.URL+"/update/latest")
	require.Contains(t, manifest.Platforms, "win32")
	assert.Equal(t, ts.URL+"/download/fever-1.2.3-win32.exe", manifest.Platforms["win32"].URL)
}

func TestManifestIncludesChecksumWhenFilePresent(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.2.3")

	path := filepath.Join(releaseDir, "fever-1.2.3-win32.exe")
	require.NoError(t, os.WriteFile(path, []byte("installer bytes"), 0o644))

	_, manifest := getManifest(t, ts.URL+"/update/latest")
	assert.NotEmpty(t, manifest.Platforms["win32"].SHA256)
	assert.Empty(t, manifest.Platforms["darwin"].SHA256)
}

func TestBetaGating(t *testing.T) {
	ts, _ := newTestServer(t, "2.0.0")

	tests := []struct {
		channel    string
		betaID     string
		wantStatus int
	}{
		{"beta", "BETA123", http.StatusOK},
		{"beta", "BETA456", http.StatusOK},
		{"dev", "DEV789", http.StatusOK},
		{"dev", "BETA123", http.StatusForbidden},
		{"beta", "UNKNOWN", http.StatusForbidden},
		{"dev", "UNKNOWN", http.StatusForbidden},
		// no beta id means no gating
		{"beta", "", http.StatusOK},
		{"dev", "", http.StatusOK},
		// latest is never gated
		{"latest", "UNKNOWN", http.StatusOK},
	}
	for _, tt := range tests {
		url := fmt.Sprintf("%s/update/%s", ts.URL, tt.channel)
		if tt.betaID != "" {
			url += "?" + updater.BetaIDParam + "=" + tt.betaID
		}
		status, _ := getManifest(t, url)
		assert.Equal(t, tt.wantStatus, status, "%s betaId=%q", tt.channel, tt.betaID)
	}
}

func TestBetaGatingErrorBody(t *testing.T) {
	ts, _ := newTestServer(t, "2.0.0")

	resp, err := http.Get(ts.URL + "/update/dev?betaId=BETA123")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "access denied", body["error"])
	assert.Equal(t, "dev", body["channel"])
	assert.Contains(t, body["message"], "BETA123")
}

func writeReleaseFile(t *testing.T, dir, name string, size int) []byte {
	t.Helper()
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), payload, 0o644))
	return payload
}

func TestDownloadFullFile(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	payload := writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)

	resp, err := http.Get(ts.URL + "/download/fever-1.0.0-win32.exe")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, body))
}

func rangeRequest(t *testing.T, url, rangeHeader string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDownloadByteRange(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	payload := writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)
	url := ts.URL + "/download/fever-1.0.0-win32.exe"

	resp := rangeRequest(t, url, "bytes=100-199")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 100-199/1000", resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, body, 100)
	assert.True(t, bytes.Equal(payload[100:200], body))
}

func TestDownloadOpenEndedRange(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	payload := writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)

	resp := rangeRequest(t, ts.URL+"/download/fever-1.0.0-win32.exe", "bytes=900-")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 900-999/1000", resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload[900:], body))
}

func TestDownloadSuffixRange(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	payload := writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)

	resp := rangeRequest(t, ts.URL+"/download/fever-1.0.0-win32.exe", "bytes=-50")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 950-999/1000", resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload[950:], body))
}

func TestDownloadRangeBeyondFileIsNotSatisfiable(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)

	resp := rangeRequest(t, ts.URL+"/download/fever-1.0.0-win32.exe", "bytes=2000-3000")
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, "bytes */1000", resp.Header.Get("Content-Range"))
}

func TestDownloadMalformedRangeServesFullFile(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	payload := writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 1000)

	for _, header := range []string{"bytes=abc-def", "bytes=100-199,300-399", "items=0-9"} {
		resp := rangeRequest(t, ts.URL+"/download/fever-1.0.0-win32.exe", header)
		require.Equal(t, http.StatusOK, resp.StatusCode, header)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Len(t, body, len(payload), header)
	}
}

func TestDownloadMissingFileListsAvailable(t *testing.T) {
	ts, releaseDir := newTestServer(t, "1.0.0")
	writeReleaseFile(t, releaseDir, "fever-1.0.0-win32.exe", 10)
	writeReleaseFile(t, releaseDir, "fever-1.0.0-darwin.zip", 10)

	resp, err := http.Get(ts.URL + "/download/fever-9.9.9-win32.exe")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Error          string   `json:"error"`
		AvailableFiles []string `json:"availableFiles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "fever-9.9.9-win32.exe")
	assert.Equal(t, []string{"fever-1.0.0-darwin.zip", "fever-1.0.0-win32.exe"}, body.AvailableFiles)
}

func TestDownloadPathTraversalIsFlattened(t *testing.T) {
	ts, _ := newTestServer(t, "1.0.0")

	resp, err := http.Get(ts.URL + "/download/..%2f..%2fetc%2fpasswd")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerifyBeta(t *testing.T) {
	ts, _ := newTestServer(t, "1.0.0")

	resp, err := http.Get(ts.URL + "/verify-beta?id=DEV789")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Valid           bool              `json:"valid"`
		Name            string            `json:"name"`
		AllowedChannels []updater.Channel `json:"allowedChannels"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Valid)
	assert.Equal(t, "Linus Nightly", body.Name)
	assert.Contains(t, body.AllowedChannels, updater.ChannelDev)
}

func TestVerifyBetaUnknownID(t *testing.T) {
	ts, _ := newTestServer(t, "1.0.0")

	resp, err := http.Get(ts.URL + "/verify-beta?id=NOPE")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["valid"])
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, "2.3.4")

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Service  string            `json:"service"`
		Version  string            `json:"version"`
		Channels map[string]string `json:"channels"`
		Uptime   string            `json:"uptime"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "fever-feed-server", body.Service)
	assert.Equal(t, "2.3.4", body.Version)
	assert.Equal(t, "2.4.0", body.Channels["beta"])
	assert.NotEmpty(t, body.Uptime)
}

func TestUnknownRouteListsDirectory(t *testing.T) {
	ts, _ := newTestServer(t, "1.0.0")

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Error  string   `json:"error"`
		Routes []string `json:"routes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "/nope")
	assert.Contains(t, body.Routes, "GET /update/{channel}")
}
