// Package protocol defines the messages exchanged with the display: events
// flowing out of the controller and commands flowing into it.
//
// Both are closed unions. Every concrete type implements a sealed interface,
// so a switch over them in the controller and bridge covers the full set.
// On the wire each message is a JSON object with a "type" tag and a
// "payload"; commands may also carry a "request" field.
package protocol

import (
	"encoding/json"
	"fmt"

	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/session"
	"tools.zach/dev/steamthing/internal/steam"
)

// ///////////////////////////////////////////////
// Connection State
// ///////////////////////////////////////////////

// Status is the controller connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// ConnectionInfo is the connection snapshot sent to the display.
type ConnectionInfo struct {
	Status        Status  `json:"status"`
	LastConnected *int64  `json:"lastConnected"`
	LastError     *string `json:"lastError"`
	TrackedID     string  `json:"trackedSteamId"`
}

// ///////////////////////////////////////////////
// Events
// ///////////////////////////////////////////////

// Event wire type tags.
const (
	TypeConnectionStatus = "connectionStatus"
	TypeLog              = "log"
	TypeLogs             = "logs"
	TypePlayerSummary    = "playerSummary"
	TypeGameSession      = "gameSession"
	TypeSettings         = "settings"
)

// Event is a message sent to the display.
type Event interface {
	// EventType returns the wire type tag.
	EventType() string
	payload() any
}

// ConnectionStatusEvent carries the connection snapshot.
type ConnectionStatusEvent struct{ Info ConnectionInfo }

// LogEvent carries one appended log entry.
type LogEvent struct{ Entry logger.Entry }

// LogsEvent carries the whole log buffer.
type LogsEvent struct{ Entries []logger.Entry }

// PlayerSummaryEvent carries a freshly polled profile.
type PlayerSummaryEvent struct{ Summary steam.PlayerSummary }

// GameSessionEvent carries the active session, or nil for none.
type GameSessionEvent struct{ Session *session.GameSession }

// SettingsEvent carries the applied settings with the API key masked.
type SettingsEvent struct{ Settings config.Settings }

func (ConnectionStatusEvent) EventType() string { return TypeConnectionStatus }
func (LogEvent) EventType() string              { return TypeLog }
func (LogsEvent) EventType() string             { return TypeLogs }
func (PlayerSummaryEvent) EventType() string    { return TypePlayerSummary }
func (GameSessionEvent) EventType() string      { return TypeGameSession }
func (SettingsEvent) EventType() string         { return TypeSettings }

func (e ConnectionStatusEvent) payload() any { return e.Info }
func (e LogEvent) payload() any              { return e.Entry }
func (e PlayerSummaryEvent) payload() any    { return e.Summary }
func (e GameSessionEvent) payload() any      { return e.Session }
func (e SettingsEvent) payload() any         { return e.Settings }

func (e LogsEvent) payload() any {
	if e.Entries == nil {
		return []logger.Entry{}
	}
	return e.Entries
}

// envelope is the wire shape of an event.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent renders e in its wire form.
func EncodeEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.payload())
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", e.EventType(), err)
	}
	return json.Marshal(envelope{Type: e.EventType(), Payload: payload})
}

// DecodeEvent parses a wire event. Display clients and tests use it; the
// daemon only encodes.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeConnectionStatus:
		var e ConnectionStatusEvent
		err = json.Unmarshal(env.Payload, &e.Info)
		ev = e
	case TypeLog:
		var e LogEvent
		err = json.Unmarshal(env.Payload, &e.Entry)
		ev = e
	case TypeLogs:
		var e LogsEvent
		err = json.Unmarshal(env.Payload, &e.Entries)
		ev = e
	case TypePlayerSummary:
		var e PlayerSummaryEvent
		err = json.Unmarshal(env.Payload, &e.Summary)
		ev = e
	case TypeGameSession:
		var e GameSessionEvent
		err = json.Unmarshal(env.Payload, &e.Session)
		ev = e
	case TypeSettings:
		var e SettingsEvent
		err = json.Unmarshal(env.Payload, &e.Settings)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", env.Type, err)
	}
	return ev, nil
}
