package management

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/feverhq/feverd/updater"
)

// StatusRoute is the renderer-facing channel name carrying status events.
const StatusRoute = "/update-status"

var (
	errMalformedBody = managementError{Code: 1001, Message: "unable to decode request body"}
)

// Service is the UI-facing surface of the update agent: three request
// operations mirroring the desktop app's IPC contract, plus the one-way
// update-status websocket channel.
type Service struct {
	coordinator *updater.Coordinator
	relay       *Relay
	log         *zerolog.Logger
	router      chi.Router

	version   string
	startTime time.Time
}

func New(coordinator *updater.Coordinator, relay *Relay, version string, log *zerolog.Logger) *Service {
	s := &Service{
		coordinator: coordinator,
		relay:       relay,
		log:         log,
		version:     version,
		startTime:   time.Now(),
	}
	r := chi.NewRouter()
	r.Get("/ping", ping)
	r.Get("/info", s.info)
	r.Post("/update/check", s.checkForUpdates)
	r.Post("/update/channel", s.setUpdateChannel)
	r.Post("/update/install", s.quitAndInstall)
	r.Get(StatusRoute, s.streamStatus)
	s.router = r
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve runs the management API on the listener until shutdownC closes.
func (s *Service) Serve(listener net.Listener, shutdownC <-chan struct{}) error {
	s.log.Info().Msgf("Starting management API at %s", listener.Addr())
	server := &http.Server{Handler: s}
	go func() {
		<-shutdownC
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()
	err := server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Service) info(w http.ResponseWriter, r *http.Request) {
	channel, betaID, feedURL := s.coordinator.Feed()
	writeJSONResponse(w, http.StatusOK, struct {
		Version     string          `json:"version"`
		Channel     updater.Channel `json:"channel"`
		BetaID      string          `json:"betaId,omitempty"`
		FeedURL     string          `json:"feedUrl"`
		Initialized bool            `json:"initialized"`
		StartTime   time.Time       `json:"startTime"`
		Uptime      string          `json:"uptime"`
	}{
		Version:     s.version,
		Channel:     channel,
		BetaID:      betaID,
		FeedURL:     feedURL,
		Initialized: s.coordinator.Initialized(),
		StartTime:   s.startTime,
		Uptime:      time.Since(s.startTime).String(),
	})
}

func (s *Service) checkForUpdates(w http.ResponseWriter, r *http.Request) {
	var opts updater.CheckOptions
	// a chunked request reports ContentLength -1, so decode whatever body is
	// there and treat only a present-but-malformed one as an error
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
		writeHTTPErrorResponse(w, http.StatusBadRequest, errMalformedBody)
		return
	}
	writeJSONResponse(w, http.StatusOK, s.coordinator.CheckForUpdates(opts))
}

func (s *Service) setUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeHTTPErrorResponse(w, http.StatusBadRequest, errMalformedBody)
		return
	}
	writeJSONResponse(w, http.StatusOK, s.coordinator.SetChannel(body.Channel))
}

func (s *Service) quitAndInstall(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.coordinator.QuitAndInstall())
}

// streamStatus upgrades the request to a websocket and relays status events
// until the client leaves. The client starts the stream with a
// start_streaming event and may pause it with stop_streaming.
func (s *Service) streamStatus(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The management API binds to loopback; cross-origin browser access
		// is not a concern for the desktop shell.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Debug().Msgf("failed to upgrade to websocket connection: %s", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := s.relay.Listen(cancel)
	defer s.relay.Close(session)
	s.log.Debug().Msgf("update-status session %s connected", session.id)

	go s.readClientEvents(ctx, c, session)
	s.writeStatusEvents(ctx, c, session)

	_ = c.Close(websocket.StatusNormalClosure, "")
	s.log.Debug().Msgf("update-status session %s closed", session.id)
}

func (s *Service) readClientEvents(ctx context.Context, c *websocket.Conn, session *session) {
	for {
		event, err := ReadClientEvent(c, ctx)
		if err != nil {
			if !IsClosed(err) && ctx.Err() == nil {
				s.log.Debug().Msgf("session %s read error: %s", session.id, err)
			}
			session.cancel()
			return
		}
		switch event.Type {
		case StartStreaming:
			session.Start()
		case StopStreaming:
			session.Stop()
		}
	}
}

func (s *Service) writeStatusEvents(ctx context.Context, c *websocket.Conn, session *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-session.listener:
			if err := WriteEvent(c, ctx, newUpdateStatusEvent(event)); err != nil {
				if !IsClosed(err) && ctx.Err() == nil {
					s.log.Debug().Msgf("session %s write error: %s", session.id, err)
				}
				return
			}
		}
	}
}
