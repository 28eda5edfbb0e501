package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command wire type tags.
const (
	TypeGet                  = "get"
	TypeSubscribe            = "subscribe"
	TypeUnsubscribe          = "unsubscribe"
	TypeConnect              = "connect"
	TypeDisconnect           = "disconnect"
	TypeClearLogs            = "clearLogs"
	TypeRequestPlayerSummary = "requestPlayerSummary"
	TypeApplySettings        = "settings"
	TypeSetTrackedSteamID    = "setTrackedSteamId"
)

// Requests accepted by [Get].
const (
	RequestStatus      = "status"
	RequestLogs        = "logs"
	RequestGameSession = "gameSession"
)

// TopicPlayerSummary is the only subscription topic.
const TopicPlayerSummary = "player-summary"

var (
	// ErrUnknownType is returned for a message with an unrecognized type tag.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a command lacks a required field.
	ErrMissingField = errors.New("missing field")
)

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// Command is a message received from the display.
type Command interface {
	// CommandType returns the wire type tag.
	CommandType() string
	sealed()
}

// Get asks for a snapshot to be re-sent: status, logs or gameSession.
type Get struct{ Request string }

// Subscribe adds a topic to the subscription set.
type Subscribe struct{ Topic string }

// Unsubscribe removes a topic from the subscription set.
type Unsubscribe struct{ Topic string }

// Connect starts a connection attempt.
type Connect struct{}

// Disconnect tears the connection down.
type Disconnect struct{}

// ClearLogs empties the log buffer.
type ClearLogs struct{}

// RequestPlayerSummary polls the profile once, outside the timer.
type RequestPlayerSummary struct{}

// ApplySettings carries a raw settings blob; see config.NormalizeSettings.
type ApplySettings struct{ Blob json.RawMessage }

// SetTrackedSteamID replaces the tracked Steam id.
type SetTrackedSteamID struct{ SteamID string }

func (Get) CommandType() string                  { return TypeGet }
func (Subscribe) CommandType() string            { return TypeSubscribe }
func (Unsubscribe) CommandType() string          { return TypeUnsubscribe }
func (Connect) CommandType() string              { return TypeConnect }
func (Disconnect) CommandType() string           { return TypeDisconnect }
func (ClearLogs) CommandType() string            { return TypeClearLogs }
func (RequestPlayerSummary) CommandType() string { return TypeRequestPlayerSummary }
func (ApplySettings) CommandType() string        { return TypeApplySettings }
func (SetTrackedSteamID) CommandType() string    { return TypeSetTrackedSteamID }

func (Get) sealed()                  {}
func (Subscribe) sealed()            {}
func (Unsubscribe) sealed()          {}
func (Connect) sealed()              {}
func (Disconnect) sealed()           {}
func (ClearLogs) sealed()            {}
func (RequestPlayerSummary) sealed() {}
func (ApplySettings) sealed()        {}
func (SetTrackedSteamID) sealed()    {}

// ///////////////////////////////////////////////
// Wire Format
// ///////////////////////////////////////////////

// commandWire is the wire shape of a command.
type commandWire struct {
	Type    string          `json:"type"`
	Request string          `json:"request,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeCommand parses a wire command. The request may sit at the top level
// or inside an object payload.
func DecodeCommand(data []byte) (Command, error) {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing command: %w", err)
	}
	request := w.Request
	if request == "" {
		request = payloadString(w.Payload, "request")
	}

	switch w.Type {
	case TypeGet:
		return Get{Request: request}, nil
	case TypeSubscribe:
		return Subscribe{Topic: request}, nil
	case TypeUnsubscribe:
		return Unsubscribe{Topic: request}, nil
	case TypeConnect:
		return Connect{}, nil
	case TypeDisconnect:
		return Disconnect{}, nil
	case TypeClearLogs:
		return ClearLogs{}, nil
	case TypeRequestPlayerSummary:
		return RequestPlayerSummary{}, nil
	case TypeApplySettings:
		blob := bytes.TrimSpace(w.Payload)
		if len(blob) == 0 || bytes.Equal(blob, []byte("null")) {
			return nil, fmt.Errorf("%w: settings payload", ErrMissingField)
		}
		return ApplySettings{Blob: blob}, nil
	case TypeSetTrackedSteamID:
		id := request
		if id == "" {
			id = payloadString(w.Payload, "steamId")
		}
		if id = strings.TrimSpace(id); id == "" {
			return nil, fmt.Errorf("%w: steam id", ErrMissingField)
		}
		return SetTrackedSteamID{SteamID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

// EncodeCommand renders c in its wire form.
func EncodeCommand(c Command) ([]byte, error) {
	w := commandWire{Type: c.CommandType()}
	switch c := c.(type) {
	case Get:
		w.Request = c.Request
	case Subscribe:
		w.Request = c.Topic
	case Unsubscribe:
		w.Request = c.Topic
	case ApplySettings:
		w.Payload = c.Blob
	case SetTrackedSteamID:
		w.Request = c.SteamID
	}
	return json.Marshal(w)
}

// payloadString returns payload itself when it is a JSON string, or
// payload[key] when it is an object holding a string there.
func payloadString(payload json.RawMessage, key string) string {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(payload, &s) == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(payload, &obj) != nil {
		return ""
	}
	if json.Unmarshal(obj[key], &s) == nil {
		return s
	}
	return ""
}
