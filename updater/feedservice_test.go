package updater

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

type eventRecorder struct {
	mu           sync.Mutex
	available    []Info
	notAvailable []Info
	progress     []Progress
	errs         []error
	downloadedC  chan Info
	errC         chan error
	notAvailC    chan Info
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		downloadedC: make(chan Info, 1),
		errC:        make(chan error, 1),
		notAvailC:   make(chan Info, 1),
	}
}

func (r *eventRecorder) handlers() Handlers {
	return Handlers{
		OnAvailable: func(info Info) {
			r.mu.Lock()
			r.available = append(r.available, info)
			r.mu.Unlock()
		},
		OnProgress: func(p Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnDownloaded: func(info Info) {
			r.downloadedC <- info
		},
		OnNotAvailable: func(info Info) {
			r.notAvailC <- info
		},
		OnError: func(err error) {
			r.errC <- err
		},
	}
}

func (r *eventRecorder) lastProgress() (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.progress) == 0 {
		return Progress{}, false
	}
	return r.progress[len(r.progress)-1], true
}

func checksumOf(b []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// newFeedServer serves a manifest pointing at a /download asset of the given
// payload. The download handler honors single bytes=N- range requests so
// resume paths can be exercised.
func newFeedServer(t *testing.T, version string, payload []byte, checksum string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/update/latest", func(w http.ResponseWriter, r *http.Request) {
		manifest := Manifest{
			Version: version,
			Notes:   "test release",
			PubDate: "2024-06-01T00:00:00Z",
			Platforms: map[string]ManifestPlatform{
				PlatformKey(): {
					URL:    fmt.Sprintf("http://%s/download", r.Host),
					SHA256: checksum,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(manifest))
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if strings.HasPrefix(rangeHeader, "bytes=") && strings.HasSuffix(rangeHeader, "-") {
			offset, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"), 10, 64)
			require.NoError(t, err)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, int64(len(payload))-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(payload[offset:])
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	})
	return httptest.NewServer(mux)
}

func newTestFeedService(t *testing.T, currentVersion string) (*FeedService, string, *eventRecorder) {
	targetPath := filepath.Join(t.TempDir(), "fever")
	require.NoError(t, os.WriteFile(targetPath, []byte("old-binary"), 0755))

	nop := testLogger()
	s := NewFeedService(currentVersion, targetPath, nil, nil, nop)
	recorder := newEventRecorder()
	s.Subscribe(recorder.handlers())
	return s, targetPath, recorder
}

func TestFeedServiceRequiresFeedURL(t *testing.T) {
	s, _, _ := newTestFeedService(t, "1.0.0")
	require.Error(t, s.CheckForUpdates())
}

func TestFeedServiceRejectsBadFeedURL(t *testing.T) {
	s, _, _ := newTestFeedService(t, "1.0.0")
	require.Error(t, s.SetFeedURL("file:///etc/passwd"))
	require.Error(t, s.SetFeedURL("://nope"))
	require.NoError(t, s.SetFeedURL("https://releases.fever.audio/update/latest"))
}

func TestFeedServiceDownloadsNewerVersion(t *testing.T) {
	payload := []byte("new-binary-payload")
	ts := newFeedServer(t, "1.1.0", payload, checksumOf(payload))
	defer ts.Close()

	s, targetPath, recorder := newTestFeedService(t, "1.0.0")
	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case info := <-recorder.downloadedC:
		assert.Equal(t, "1.1.0", info.Version)
		assert.Equal(t, "Fever 1.1.0", info.ReleaseName)
	case err := <-recorder.errC:
		t.Fatalf("unexpected error event: %s", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for downloaded event")
	}

	staged, err := os.ReadFile(targetPath + ".new")
	require.NoError(t, err)
	assert.Equal(t, payload, staged)

	last, ok := recorder.lastProgress()
	require.True(t, ok)
	assert.Equal(t, int64(len(payload)), last.Transferred)
	assert.Equal(t, float64(100), last.Percent)
}

func TestFeedServiceDownloadWithoutContentLength(t *testing.T) {
	payload := []byte("chunked-binary-payload")

	mux := http.NewServeMux()
	mux.HandleFunc("/update/latest", func(w http.ResponseWriter, r *http.Request) {
		manifest := Manifest{
			Version: "1.1.0",
			Platforms: map[string]ManifestPlatform{
				PlatformKey(): {URL: fmt.Sprintf("http://%s/download", r.Host)},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(manifest))
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		// flushing before the body forces a chunked response with no
		// Content-Length
		w.(http.Flusher).Flush()
		_, _ = w.Write(payload)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s, targetPath, recorder := newTestFeedService(t, "1.0.0")
	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case <-recorder.downloadedC:
	case err := <-recorder.errC:
		t.Fatalf("unexpected error event: %s", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for downloaded event")
	}

	staged, err := os.ReadFile(targetPath + ".new")
	require.NoError(t, err)
	assert.Equal(t, payload, staged)

	last, ok := recorder.lastProgress()
	require.True(t, ok)
	assert.Equal(t, int64(len(payload)), last.Transferred)
	// unknown size: no total, no percentage, never a negative byte count
	assert.Equal(t, int64(0), last.Total)
	assert.Equal(t, float64(0), last.Percent)
}

func TestFeedServiceReportsNotAvailable(t *testing.T) {
	payload := []byte("irrelevant")
	ts := newFeedServer(t, "1.0.0", payload, "")
	defer ts.Close()

	s, _, recorder := newTestFeedService(t, "1.0.0")
	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case info := <-recorder.notAvailC:
		assert.Equal(t, "1.0.0", info.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for not-available event")
	}
}

func TestFeedServiceRejectsChecksumMismatch(t *testing.T) {
	payload := []byte("tampered-payload")
	ts := newFeedServer(t, "1.1.0", payload, checksumOf([]byte("expected-payload")))
	defer ts.Close()

	s, targetPath, recorder := newTestFeedService(t, "1.0.0")
	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case err := <-recorder.errC:
		assert.Contains(t, err.Error(), "checksum validation failed")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error event")
	}
	// the tampered staging file must not be left behind
	_, err := os.Stat(targetPath + ".new")
	assert.True(t, os.IsNotExist(err))
}

func TestFeedServiceResumesPartialDownload(t *testing.T) {
	payload := []byte("0123456789abcdefghij")
	ts := newFeedServer(t, "1.1.0", payload, checksumOf(payload))
	defer ts.Close()

	s, targetPath, recorder := newTestFeedService(t, "1.0.0")
	// simulate an interrupted earlier download
	require.NoError(t, os.WriteFile(targetPath+".new", payload[:8], 0755))

	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case <-recorder.downloadedC:
	case err := <-recorder.errC:
		t.Fatalf("unexpected error event: %s", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for downloaded event")
	}

	staged, err := os.ReadFile(targetPath + ".new")
	require.NoError(t, err)
	assert.Equal(t, payload, staged)
}

func TestFeedServiceReportsFeedErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	s, _, recorder := newTestFeedService(t, "1.0.0")
	require.NoError(t, s.SetFeedURL(ts.URL+"/update/latest"))
	require.NoError(t, s.CheckForUpdates())

	select {
	case err := <-recorder.errC:
		assert.Contains(t, err.Error(), "500")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

func TestQuitAndInstallSwapsStagedBinary(t *testing.T) {
	s, targetPath, _ := newTestFeedService(t, "1.0.0")

	// nothing staged yet
	require.Error(t, s.QuitAndInstall(InstallOptions{}))

	staged := targetPath + ".new"
	require.NoError(t, os.WriteFile(staged, []byte("new-binary"), 0755))
	s.mu.Lock()
	s.staged = staged
	s.mu.Unlock()

	quitCalled := false
	s.quit = func() { quitCalled = true }

	require.NoError(t, s.QuitAndInstall(InstallOptions{SilentRelaunch: true, ForceClose: true}))

	installed, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-binary"), installed)
	assert.True(t, quitCalled)

	_, err = os.Stat(targetPath + ".old")
	assert.True(t, os.IsNotExist(err))
}
