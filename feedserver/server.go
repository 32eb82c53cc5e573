// Package feedserver is a development test double for the Fever update
// distribution endpoint. It serves per-channel manifests and installer
// binaries over HTTP, including the beta-tester gating and resumable
// downloads the desktop client exercises against the real feed.
package feedserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/feverhq/feverd/updater"
)

var routeDirectory = []string{
	"GET /update",
	"GET /fever-update.json",
	"GET /update/{channel}",
	"GET /download/{filename}",
	"GET /status",
	"GET /verify-beta?id={betaId}",
}

// Config holds the static serving state of the feed server.
type Config struct {
	// Version served on the latest channel; beta and dev versions are
	// derived from it.
	Version string
	// Notes is the release-notes blurb embedded in every manifest.
	Notes string
	// PubDate is the ISO-8601 publication date embedded in every manifest.
	PubDate string
	// ReleaseDir is where installer files are read from.
	ReleaseDir string
}

// Server emulates the production update distribution endpoint.
type Server struct {
	cfg       Config
	manifests *manifestBuilder
	log       *zerolog.Logger
	router    chi.Router
	startTime time.Time
}

func New(cfg Config, log *zerolog.Logger) *Server {
	if cfg.PubDate == "" {
		cfg.PubDate = time.Now().UTC().Format(time.RFC3339)
	}
	s := &Server{
		cfg:       cfg,
		manifests: newManifestBuilder(cfg.Version, cfg.Notes, cfg.PubDate, cfg.ReleaseDir),
		log:       log,
		startTime: time.Now(),
	}
	r := chi.NewRouter()
	r.Get("/update", s.latestManifest)
	r.Get("/fever-update.json", s.latestManifest)
	r.Get("/update/{channel}", s.channelManifest)
	r.Get("/download/{filename}", s.download)
	r.Get("/status", s.status)
	r.Get("/verify-beta", s.verifyBeta)
	r.NotFound(s.notFound)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve runs the feed server on the listener until shutdownC closes.
func Serve(cfg Config, listener net.Listener, shutdownC <-chan struct{}, log *zerolog.Logger) error {
	log.Info().Msgf("Starting feed server at %s (latest %s)", listener.Addr(), cfg.Version)
	server := &http.Server{Addr: listener.Addr().String(), Handler: New(cfg, log)}
	go func() {
		<-shutdownC
		_ = server.Close()
	}()
	err := server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) latestManifest(w http.ResponseWriter, r *http.Request) {
	s.serveManifest(w, r, updater.ChannelLatest)
}

func (s *Server) channelManifest(w http.ResponseWriter, r *http.Request) {
	// unrecognized channels fall back to latest
	s.serveManifest(w, r, updater.ParseChannel(chi.URLParam(r, "channel")))
}

// serveManifest is the shared manifest path: every manifest route, the root
// aliases included, honors the betaId query parameter the same way. The
// latest channel is never gated, so a beta id there always passes.
func (s *Server) serveManifest(w http.ResponseWriter, r *http.Request, channel updater.Channel) {
	if channel == updater.ChannelBeta || channel == updater.ChannelDev {
		if betaID := r.URL.Query().Get(updater.BetaIDParam); betaID != "" {
			tester, known := lookupTester(betaID)
			if !known || !tester.allows(channel) {
				s.log.Info().Msgf("denied %s channel manifest for beta id %q", channel, betaID)
				respondJSON(w, http.StatusForbidden, map[string]any{
					"error":   "access denied",
					"message": fmt.Sprintf("beta id %q is not registered for the %s channel", betaID, channel),
					"channel": channel,
				})
				return
			}
		}
	}

	s.writeManifest(w, r, channel)
}

func (s *Server) writeManifest(w http.ResponseWriter, r *http.Request, channel updater.Channel) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	manifest := s.manifests.manifestFor(channel, scheme, r.Host)
	respondJSON(w, http.StatusOK, manifest)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	// the filename is flattened so a crafted path can't escape the release dir
	filename := filepath.Base(chi.URLParam(r, "filename"))
	path := filepath.Join(s.cfg.ReleaseDir, filename)

	f, err := os.Open(path)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":          fmt.Sprintf("release file %q not found", filename),
			"availableFiles": s.releaseFiles(),
		})
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	size := fi.Size()

	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, end, ok, satisfiable := parseRange(rangeHeader, size)
		if ok && !satisfiable {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if ok {
			if _, err := f.Seek(start, io.SeekStart); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
			w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = io.CopyN(w, f, end-start+1)
			return
		}
		// a malformed or multi-part range header is ignored, fall through to
		// a full response
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	_, _ = io.Copy(w, f)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "fever-feed-server",
		"version": s.cfg.Version,
		"channels": map[updater.Channel]string{
			updater.ChannelLatest: s.manifests.version(updater.ChannelLatest),
			updater.ChannelBeta:   s.manifests.version(updater.ChannelBeta),
			updater.ChannelDev:    s.manifests.version(updater.ChannelDev),
		},
		"startTime": s.startTime,
		"uptime":    time.Since(s.startTime).String(),
	})
}

func (s *Server) verifyBeta(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	tester, ok := lookupTester(id)
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]any{"valid": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"valid":           true,
		"name":            tester.Name,
		"allowedChannels": tester.AllowedChannels,
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, map[string]any{
		"error":  fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
		"routes": routeDirectory,
	})
}

func (s *Server) releaseFiles() []string {
	entries, err := os.ReadDir(s.cfg.ReleaseDir)
	if err != nil {
		return nil
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
