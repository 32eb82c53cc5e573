package management

import (
	"context"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"nhooyr.io/websocket"

	"github.com/feverhq/feverd/updater"
)

var json = jsoniter.ConfigFastest

var errInvalidMessageType = fmt.Errorf("invalid message type was provided")

// ServerEventType represents the event types that can come from the agent.
type ServerEventType string

// ClientEventType represents the event types that can come from the UI client.
type ClientEventType string

const (
	UnknownClientEventType ClientEventType = ""
	StartStreaming         ClientEventType = "start_streaming"
	StopStreaming          ClientEventType = "stop_streaming"

	UnknownServerEventType ServerEventType = ""
	UpdateStatus           ServerEventType = "update_status"
)

// ServerEvent is the base struct that informs, based of the Type field, which
// event type was provided from the agent.
type ServerEvent struct {
	Type ServerEventType `json:"type,omitempty"`
	// The raw json message is provided to allow better deserialization once the type is known
	event jsoniter.RawMessage
}

// ClientEvent is the base struct that informs, based of the Type field, which
// event type was provided from the client.
type ClientEvent struct {
	Type ClientEventType `json:"type,omitempty"`
	// The raw json message is provided to allow better deserialization once the type is known
	event jsoniter.RawMessage
}

// EventStartStreaming signifies that the client wishes to start receiving
// update-status events.
type EventStartStreaming struct {
	ClientEvent
}

// EventStopStreaming signifies that the client wishes to halt receiving
// update-status events.
type EventStopStreaming struct {
	ClientEvent
}

// EventUpdateStatus is the event the agent pushes to the client on every
// status transition of the update cycle. One event is sent per platform
// event, in arrival order; there is no acknowledgment and no buffering beyond
// the session window.
type EventUpdateStatus struct {
	ServerEvent
	Status   updater.Status    `json:"status"`
	Info     *updater.Info     `json:"info,omitempty"`
	Progress *updater.Progress `json:"progress,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func newUpdateStatusEvent(event updater.StatusEvent) *EventUpdateStatus {
	return &EventUpdateStatus{
		ServerEvent: ServerEvent{Type: UpdateStatus},
		Status:      event.Status,
		Info:        event.Info,
		Progress:    event.Progress,
		Error:       event.Error,
	}
}

// IntoClientEvent unmarshals the provided ClientEvent into the proper type.
func IntoClientEvent[T EventStartStreaming | EventStopStreaming](e *ClientEvent, eventType ClientEventType) (*T, bool) {
	if e.Type != eventType {
		return nil, false
	}
	event := new(T)
	err := json.Unmarshal(e.event, event)
	if err != nil {
		return nil, false
	}
	return event, true
}

// IntoServerEvent unmarshals the provided ServerEvent into the proper type.
func IntoServerEvent[T EventUpdateStatus](e *ServerEvent, eventType ServerEventType) (*T, bool) {
	if e.Type != eventType {
		return nil, false
	}
	event := new(T)
	err := json.Unmarshal(e.event, event)
	if err != nil {
		return nil, false
	}
	return event, true
}

// ReadServerEvent will read a message from the websocket connection and parse
// it into a valid ServerEvent.
func ReadServerEvent(c *websocket.Conn, ctx context.Context) (*ServerEvent, error) {
	message, err := readMessage(c, ctx)
	if err != nil {
		return nil, err
	}
	event := ServerEvent{}
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, err
	}
	switch event.Type {
	case UpdateStatus:
		event.event = message
		return &event, nil
	case UnknownServerEventType:
		return nil, errInvalidMessageType
	default:
		return nil, fmt.Errorf("invalid server message type was provided: %s", event.Type)
	}
}

// ReadClientEvent will read a message from the websocket connection and parse
// it into a valid ClientEvent.
func ReadClientEvent(c *websocket.Conn, ctx context.Context) (*ClientEvent, error) {
	message, err := readMessage(c, ctx)
	if err != nil {
		return nil, err
	}
	event := ClientEvent{}
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, err
	}
	switch event.Type {
	case StartStreaming, StopStreaming:
		event.event = message
		return &event, nil
	case UnknownClientEventType:
		return nil, errInvalidMessageType
	default:
		return nil, fmt.Errorf("invalid client message type was provided: %s", event.Type)
	}
}

// readMessage will read a message from the websocket connection and return the payload.
func readMessage(c *websocket.Conn, ctx context.Context) ([]byte, error) {
	messageType, reader, err := c.Reader(ctx)
	if err != nil {
		return nil, err
	}
	if messageType != websocket.MessageText {
		return nil, errInvalidMessageType
	}
	return io.ReadAll(reader)
}

// WriteEvent will write an event type message to the websocket connection.
func WriteEvent(c *websocket.Conn, ctx context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, payload)
}

// IsClosed returns true if the websocket error is a websocket.CloseError.
func IsClosed(err error) bool {
	var closeErr websocket.CloseError
	return errors.As(err, &closeErr)
}
