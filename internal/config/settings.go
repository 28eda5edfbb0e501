package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bounds and defaults for the runtime settings.
const (
	DefaultPollIntervalSeconds = 30
	MinPollIntervalSeconds     = 10
	MaxPollIntervalSeconds     = 300

	DefaultMaxLogs = 100
	MinMaxLogs     = 10
	MaxMaxLogs     = 1000
)

// ErrSettingsShape is returned when a settings broadcast is not a JSON object.
var ErrSettingsShape = errors.New("settings payload must be a JSON object")

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

// Settings is the slice of configuration the controller applies at runtime.
// Two Settings are equal exactly when applying one after the other would be a
// no-op, so change detection is plain struct comparison.
type Settings struct {
	APIKey              string `json:"steamApiKey"`
	TrackedID           string `json:"trackedSteamId"`
	PresenceID          string `json:"discordUserId"`
	AutoConnect         bool   `json:"autoConnect"`
	PollIntervalSeconds int    `json:"pollInterval"`
	MaxLogs             int    `json:"maxLogs"`
}

// DefaultSettings returns the settings of an empty configuration.
func DefaultSettings() Settings {
	return Settings{
		AutoConnect:         true,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		MaxLogs:             DefaultMaxLogs,
	}
}

// PollInterval returns the polling interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// Clamped returns s with the numeric fields forced into their bounds.
func (s Settings) Clamped() Settings {
	s.PollIntervalSeconds = min(max(s.PollIntervalSeconds, MinPollIntervalSeconds), MaxPollIntervalSeconds)
	s.MaxLogs = min(max(s.MaxLogs, MinMaxLogs), MaxMaxLogs)
	return s
}

// Redacted returns s with the API key masked down to its last four characters.
func (s Settings) Redacted() Settings {
	if n := len(s.APIKey); n > 4 {
		s.APIKey = strings.Repeat("*", n-4) + s.APIKey[n-4:]
	} else if n > 0 {
		s.APIKey = strings.Repeat("*", n)
	}
	return s
}

// ///////////////////////////////////////////////
// Broadcast Normalization
// ///////////////////////////////////////////////

// NormalizeSettings converts a settings broadcast into Settings. Each field
// may be the bare value or wrapped as {"value": X} (the shape the display's
// settings schema uses). Numbers may arrive as strings. Missing string fields
// keep their value from prev; missing scalars take their defaults. Numeric
// fields are clamped to their bounds.
//
// A field holding an unusable value falls back the same way as a missing one;
// the returned error then lists every such field while the Settings are still
// valid to apply.
func NormalizeSettings(blob []byte, prev Settings) (Settings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil || fields == nil {
		return prev, ErrSettingsShape
	}

	def := DefaultSettings()
	out := Settings{}
	var errs []error

	str := func(key string, fallback string) string {
		v, err := stringField(fields, key)
		if err != nil {
			errs = append(errs, err)
		}
		if v == nil {
			return fallback
		}
		return *v
	}
	out.APIKey = str("steamApiKey", prev.APIKey)
	out.TrackedID = str("trackedSteamId", prev.TrackedID)
	out.PresenceID = str("discordUserId", prev.PresenceID)

	out.AutoConnect = def.AutoConnect
	if v, err := boolField(fields, "autoConnect"); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		out.AutoConnect = *v
	}

	out.PollIntervalSeconds = def.PollIntervalSeconds
	if v, err := intField(fields, "pollInterval"); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		out.PollIntervalSeconds = *v
	}

	out.MaxLogs = def.MaxLogs
	if v, err := intField(fields, "maxLogs"); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		out.MaxLogs = *v
	}

	return out.Clamped(), errors.Join(errs...)
}

// unwrap returns the raw value of key, looking through a {"value": X}
// wrapper. A missing key or JSON null yields nil.
func unwrap(fields map[string]json.RawMessage, key string) json.RawMessage {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil {
			raw = bytes.TrimSpace(wrapped.Value)
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func stringField(fields map[string]json.RawMessage, key string) (*string, error) {
	raw := unwrap(fields, key)
	if raw == nil {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return &s, nil
	}
	// Steam IDs are sometimes sent as bare numbers; keep every digit.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s := n.String()
		return &s, nil
	}
	return nil, fmt.Errorf("%s: expected a string, got %s", key, raw)
}

func boolField(fields map[string]json.RawMessage, key string) (*bool, error) {
	raw := unwrap(fields, key)
	if raw == nil {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("%s: expected a boolean, got %s", key, raw)
}

func intField(fields map[string]json.RawMessage, key string) (*int, error) {
	raw := unwrap(fields, key)
	if raw == nil {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		n := int(f)
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			n := int(f)
			return &n, nil
		}
	}
	return nil, fmt.Errorf("%s: expected a number, got %s", key, raw)
}
