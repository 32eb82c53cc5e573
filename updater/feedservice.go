package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/facebookgo/grace/gracenet"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	clientTimeout = time.Second * 60
	// progressInterval throttles download-progress events so a fast transfer
	// does not flood the status channel.
	progressInterval = 250 * time.Millisecond
)

// Manifest is the update feed document served per channel by the
// distribution endpoint.
type Manifest struct {
	Version   string                      `json:"version"`
	Notes     string                      `json:"notes"`
	PubDate   string                      `json:"pub_date"`
	Platforms map[string]ManifestPlatform `json:"platforms"`
}

// ManifestPlatform is one per-platform entry of a manifest.
type ManifestPlatform struct {
	Signature string `json:"signature"`
	URL       string `json:"url"`
	SHA256    string `json:"sha256,omitempty"`
}

// PlatformKey returns the manifest platforms key for the running host. The
// feed keeps the desktop app's naming, so windows maps to win32 and Apple
// silicon gets its own entry.
func PlatformKey() string {
	switch runtime.GOOS {
	case "windows":
		return "win32"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "darwin-arm64"
		}
		return "darwin"
	default:
		return runtime.GOOS
	}
}

// FeedService is the production Platform implementation. It polls the
// manifest endpoint, downloads the matching platform asset with resume
// support, verifies it when the manifest carries a checksum, and stages it
// next to the target binary. Install swaps the staged file in and relaunches
// the process.
type FeedService struct {
	currentVersion string
	targetPath     string
	client         *http.Client
	listeners      *gracenet.Net
	log            *zerolog.Logger

	mu       sync.Mutex
	feedURL  string
	handlers Handlers
	// path of a fully downloaded, verified asset waiting to be installed
	staged string

	// quit asks the hosting process to shut down after a successful relaunch.
	quit func()
}

// NewFeedService creates a feed service updating the binary at targetPath.
// listeners is used to relaunch the process on install; quit is called after
// a successful relaunch and may be nil.
func NewFeedService(currentVersion, targetPath string, listeners *gracenet.Net, quit func(), log *zerolog.Logger) *FeedService {
	return &FeedService{
		currentVersion: currentVersion,
		targetPath:     targetPath,
		client:         &http.Client{Timeout: clientTimeout},
		listeners:      listeners,
		quit:           quit,
		log:            log,
	}
}

func (s *FeedService) SetFeedURL(feedURL string) error {
	u, err := url.Parse(feedURL)
	if err != nil {
		return errors.Wrap(err, "invalid feed URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported feed URL scheme %q", u.Scheme)
	}
	s.mu.Lock()
	s.feedURL = feedURL
	s.mu.Unlock()
	return nil
}

func (s *FeedService) Subscribe(handlers Handlers) {
	s.mu.Lock()
	s.handlers = handlers
	s.mu.Unlock()
}

// CheckForUpdates starts a check against the registered feed URL. The trigger
// fails synchronously only when no feed URL has been registered; everything
// past that is reported through the subscribed handlers.
func (s *FeedService) CheckForUpdates() error {
	s.mu.Lock()
	feedURL := s.feedURL
	s.mu.Unlock()
	if feedURL == "" {
		return errors.New("no feed URL registered")
	}
	go s.check(feedURL)
	return nil
}

// CheckAndStage checks the feed once, synchronously, without going through
// the subscribed handlers. It returns nil when the running version is
// current, or the update info once the asset has been downloaded, verified
// and staged. Used by the one-shot CLI update path.
func (s *FeedService) CheckAndStage() (*Info, error) {
	s.mu.Lock()
	feedURL := s.feedURL
	s.mu.Unlock()
	if feedURL == "" {
		return nil, errors.New("no feed URL registered")
	}

	manifest, err := s.fetchManifest(feedURL)
	if err != nil {
		return nil, err
	}
	if !IsNewerVersion(s.currentVersion, manifest.Version) {
		return nil, nil
	}

	asset, ok := manifest.Platforms[PlatformKey()]
	if !ok {
		return nil, errors.Errorf("manifest %s has no entry for platform %s", manifest.Version, PlatformKey())
	}
	staged, err := s.download(asset)
	if err != nil {
		return nil, errors.Wrap(err, "update download failed")
	}

	s.mu.Lock()
	s.staged = staged
	s.mu.Unlock()

	return &Info{
		Version:     manifest.Version,
		ReleaseName: fmt.Sprintf("Fever %s", manifest.Version),
		Notes:       manifest.Notes,
		ReleaseDate: manifest.PubDate,
	}, nil
}

func (s *FeedService) check(feedURL string) {
	manifest, err := s.fetchManifest(feedURL)
	if err != nil {
		s.emitError(err)
		return
	}

	info := Info{
		Version:     manifest.Version,
		ReleaseName: fmt.Sprintf("Fever %s", manifest.Version),
		Notes:       manifest.Notes,
		ReleaseDate: manifest.PubDate,
	}

	if !IsNewerVersion(s.currentVersion, manifest.Version) {
		s.emit(func(h Handlers) {
			if h.OnNotAvailable != nil {
				h.OnNotAvailable(info)
			}
		})
		return
	}

	s.emit(func(h Handlers) {
		if h.OnAvailable != nil {
			h.OnAvailable(info)
		}
	})

	asset, ok := manifest.Platforms[PlatformKey()]
	if !ok {
		s.emitError(errors.Errorf("manifest %s has no entry for platform %s", manifest.Version, PlatformKey()))
		return
	}

	staged, err := s.download(asset)
	if err != nil {
		s.emitError(errors.Wrap(err, "update download failed"))
		return
	}

	s.mu.Lock()
	s.staged = staged
	s.mu.Unlock()

	s.emit(func(h Handlers) {
		if h.OnDownloaded != nil {
			h.OnDownloaded(info)
		}
	})
}

func (s *FeedService) fetchManifest(feedURL string) (*Manifest, error) {
	resp, err := s.client.Get(feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("feed returned %d: %s", resp.StatusCode, string(body))
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, errors.Wrap(err, "unable to decode manifest")
	}
	if manifest.Version == "" {
		return nil, errors.New("manifest has no version")
	}
	return &manifest, nil
}

// download fetches the asset into a staging file beside the target binary. A
// partial staging file from an interrupted run is resumed with a range
// request when the server supports it.
func (s *FeedService) download(asset ManifestPlatform) (string, error) {
	staging := s.targetPath + ".new"

	var offset int64
	if fi, err := os.Stat(staging); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequest(http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// resume accepted, keep the partial file
	case http.StatusOK:
		// server ignored or rejected the range, start over
		offset = 0
	default:
		return "", errors.Errorf("download returned %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(staging, flags, 0755)
	if err != nil {
		return "", err
	}

	// chunked responses carry no Content-Length; report an unknown total as
	// zero rather than a negative size
	var total int64
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	if err := s.copyWithProgress(out, resp.Body, offset, total); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	if asset.SHA256 != "" {
		if err := verifyChecksum(asset.SHA256, staging); err != nil {
			os.Remove(staging)
			return "", err
		}
	}
	return staging, nil
}

func (s *FeedService) copyWithProgress(dst io.Writer, src io.Reader, offset, total int64) error {
	transferred := offset
	start := time.Now()
	lastEmit := time.Time{}
	buf := make([]byte, 32*1024)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			transferred += int64(n)
		}

		done := readErr == io.EOF
		if done || time.Since(lastEmit) >= progressInterval {
			lastEmit = time.Now()
			s.emitProgress(transferred, offset, total, start)
		}
		if done {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (s *FeedService) emitProgress(transferred, offset, total int64, start time.Time) {
	progress := Progress{
		Total:       total,
		Transferred: transferred,
	}
	if total > 0 {
		progress.Percent = float64(transferred) / float64(total) * 100
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		progress.BytesPerSecond = float64(transferred-offset) / elapsed
	}
	s.emit(func(h Handlers) {
		if h.OnProgress != nil {
			h.OnProgress(progress)
		}
	})
}

// QuitAndInstall swaps the staged asset in for the target binary and
// relaunches the process. The old binary is kept until the new one is in
// place so a failed rename can roll back.
func (s *FeedService) QuitAndInstall(opts InstallOptions) error {
	s.mu.Lock()
	staged := s.staged
	s.mu.Unlock()
	if staged == "" {
		return errors.New("no downloaded update to install")
	}

	oldPath := s.targetPath + ".old"
	if err := os.Rename(s.targetPath, oldPath); err != nil {
		return errors.Wrap(err, "unable to move current binary aside")
	}
	if err := os.Rename(staged, s.targetPath); err != nil {
		// attempt rollback
		_ = os.Rename(oldPath, s.targetPath)
		return errors.Wrap(err, "unable to move update into place")
	}
	os.Remove(oldPath)

	s.mu.Lock()
	s.staged = ""
	s.mu.Unlock()

	if s.listeners != nil {
		pid, err := s.listeners.StartProcess()
		if err != nil {
			return errors.Wrap(err, "unable to relaunch into the new version")
		}
		s.log.Info().Msgf("relaunched into updated binary, new pid %d", pid)
	}
	if s.quit != nil {
		s.quit()
	}
	return nil
}

func (s *FeedService) emit(fn func(Handlers)) {
	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()
	fn(handlers)
}

func (s *FeedService) emitError(err error) {
	s.emit(func(h Handlers) {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
}

