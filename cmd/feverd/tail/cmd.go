package tail

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"nhooyr.io/websocket"

	"github.com/feverhq/feverd/cmd/feverd/cliutil"
	fdflags "github.com/feverhq/feverd/cmd/feverd/flags"
	"github.com/feverhq/feverd/config"
	"github.com/feverhq/feverd/management"
)

var buildInfo *cliutil.BuildInfo

func Init(bi *cliutil.BuildInfo) {
	buildInfo = bi
}

func Command() *cli.Command {
	return &cli.Command{
		Name:      "tail",
		Action:    Run,
		Usage:     "Stream update status events from a running agent",
		UsageText: "feverd tail [tail command options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    fdflags.ManagementAddr,
				Usage:   "Management API address of the running agent",
				Value:   config.DefaultManagementAddr,
				EnvVars: []string{"FEVER_MANAGEMENT_ADDR"},
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output format for the events (default, json)",
				Value: "default",
			},
			&cli.StringFlag{
				Name:    fdflags.LogLevel,
				Value:   "info",
				Usage:   "Application logging level {debug, info, warn, error, fatal}",
				EnvVars: []string{"FEVER_LOGLEVEL"},
			},
		},
	}
}

// logger will be created to emit only against os.Stderr as to not obstruct
// the event output on stdout
func createLogger(c *cli.Context) *zerolog.Logger {
	level, levelErr := zerolog.ParseLevel(c.String(fdflags.LogLevel))
	if levelErr != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{
		Out:        colorable.NewColorable(os.Stderr),
		TimeFormat: time.RFC3339,
	}
	log := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	return &log
}

func buildURL(c *cli.Context) url.URL {
	return url.URL{
		Scheme: "ws",
		Host:   c.String(fdflags.ManagementAddr),
		Path:   management.StatusRoute,
	}
}

func printLine(event *management.EventUpdateStatus) {
	line := string(event.Status)
	if event.Info != nil {
		line += fmt.Sprintf(" %s", event.Info.Version)
	}
	if event.Progress != nil {
		line += fmt.Sprintf(" %.1f%% (%d/%d bytes)", event.Progress.Percent, event.Progress.Transferred, event.Progress.Total)
	}
	if event.Error != "" {
		line += fmt.Sprintf(" error=%q", event.Error)
	}
	fmt.Println(line)
}

func printJSON(event *management.EventUpdateStatus, log *zerolog.Logger) {
	output, err := json.Marshal(event)
	if err != nil {
		log.Debug().Msgf("unable to serialize event %+v", event)
		return
	}
	fmt.Println(string(output))
}

// Run implements a foreground runner
func Run(c *cli.Context) error {
	log := createLogger(c)

	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	output := c.String("output")
	switch output {
	case "default", "json":
	default:
		log.Err(fmt.Errorf("invalid --output value provided, please make sure it is one of: default, json")).Send()
		return nil
	}

	u := buildURL(c)
	header := make(http.Header)
	header.Add("User-Agent", buildInfo.UserAgent())

	ctx := c.Context
	// nolint: bodyclose
	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			log.Error().Msgf("unable to start status streaming session: http response code returned %d", resp.StatusCode)
			return nil
		}
		log.Error().Err(err).Msgf("unable to connect to the management API at %s", u.Host)
		return nil
	}
	defer conn.Close(websocket.StatusInternalError, "management connection was closed abruptly")

	// Once the connection is established, send start_streaming to begin
	// receiving status events
	err = management.WriteEvent(conn, ctx, &management.EventStartStreaming{
		ClientEvent: management.ClientEvent{Type: management.StartStreaming},
	})
	if err != nil {
		log.Error().Err(err).Msg("unable to request status events from the agent")
		return nil
	}
	log.Debug().Str("addr", u.Host).Msg("connected")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				event, err := management.ReadServerEvent(conn, ctx)
				if err != nil {
					if management.IsClosed(err) || err == io.EOF {
						return
					}
					log.Error().Err(err).Msg("unable to read status event")
					return
				}
				switch event.Type {
				case management.UpdateStatus:
					status, ok := management.IntoServerEvent[management.EventUpdateStatus](event, management.UpdateStatus)
					if !ok {
						log.Error().Msgf("invalid update_status event from agent: %v", event)
						continue
					}
					if output == "json" {
						printJSON(status, log)
					} else {
						printLine(status)
					}
				default:
					log.Debug().Msgf("unexpected event type from agent: %s", event.Type)
				}
			}
		}
	}()

	select {
	case <-signals:
		log.Info().Msg("closing status streaming session")
		_ = management.WriteEvent(conn, ctx, &management.EventStopStreaming{
			ClientEvent: management.ClientEvent{Type: management.StopStreaming},
		})
		conn.Close(websocket.StatusNormalClosure, "")
	case <-readerDone:
	case <-ctx.Done():
	}
	return nil
}
