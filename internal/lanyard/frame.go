package lanyard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode is a Lanyard socket frame opcode.
type Opcode int

const (
	// OpEvent carries a dispatch event named by the frame's "t" field.
	OpEvent Opcode = 0
	// OpHello is sent by the server right after the connection opens.
	OpHello Opcode = 1
	// OpInitialize subscribes the connection to one or more users.
	OpInitialize Opcode = 2
	// OpHeartbeat keeps the connection alive.
	OpHeartbeat Opcode = 3

	// MaxFrameSize is the largest inbound frame accepted (1 MB).
	MaxFrameSize = 1 << 20
)

// Dispatch event types forwarded as presences.
const (
	EventInitState      = "INIT_STATE"
	EventPresenceUpdate = "PRESENCE_UPDATE"
)

// ErrFrameTooLarge is returned when an inbound frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Frame is the envelope of every Lanyard socket message.
type Frame struct {
	Op   Opcode          `json:"op"`
	Seq  int             `json:"seq,omitempty"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// ///////////////////////////////////////////////
// Frame Encoding
// ///////////////////////////////////////////////

// EncodeSubscribe builds the initialize frame for userIDs. A single id uses
// subscribe_to_id; several use subscribe_to_ids.
func EncodeSubscribe(userIDs []string) ([]byte, error) {
	if len(userIDs) == 0 {
		return nil, errors.New("no user ids to subscribe to")
	}
	var d any
	if len(userIDs) == 1 {
		d = map[string]string{"subscribe_to_id": userIDs[0]}
	} else {
		d = map[string][]string{"subscribe_to_ids": userIDs}
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling subscribe: %w", err)
	}
	return json.Marshal(Frame{Op: OpInitialize, Data: payload})
}

// EncodeHeartbeat builds the heartbeat frame.
func EncodeHeartbeat() []byte {
	return []byte(`{"op":3}`)
}

// ///////////////////////////////////////////////
// Frame Decoding
// ///////////////////////////////////////////////

// DecodeFrame parses one inbound message.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(data), MaxFrameSize)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parsing frame: %w", err)
	}
	return f, nil
}

// DecodePresences extracts the presences carried by an INIT_STATE or
// PRESENCE_UPDATE frame. A single-user subscription carries one presence in
// "d"; a multi-user INIT_STATE carries a map of user id to presence.
func DecodePresences(f Frame) ([]Presence, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%s frame has no data", f.Type)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing %s data: %w", f.Type, err)
	}
	if isPresence(fields) {
		var p Presence
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing presence: %w", err)
		}
		return []Presence{p}, nil
	}

	out := make([]Presence, 0, len(fields))
	for id, raw := range fields {
		var p Presence
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parsing presence for %s: %w", id, err)
		}
		if p.UserID == "" {
			p.UserID = id
		}
		out = append(out, p)
	}
	return out, nil
}

func isPresence(fields map[string]json.RawMessage) bool {
	for _, k := range []string{"activities", "discord_user", "discord_status"} {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}
