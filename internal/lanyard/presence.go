package lanyard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActivityPlaying is the Discord activity type for games.
const ActivityPlaying = 0

// Presence is a Lanyard presence snapshot for one Discord user.
type Presence struct {
	UserID             string      `json:"user_id,omitempty"`
	DiscordUser        DiscordUser `json:"discord_user"`
	DiscordStatus      string      `json:"discord_status"`
	Activities         []Activity  `json:"activities"`
	ListeningToSpotify bool        `json:"listening_to_spotify"`
}

// DiscordUser identifies the presence owner.
type DiscordUser struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
}

// Activity is one Discord activity. Only the fields the session logic reads
// are decoded.
type Activity struct {
	ID            string      `json:"id,omitempty"`
	Name          string      `json:"name"`
	Type          int         `json:"type"`
	ApplicationID Snowflake   `json:"application_id,omitempty"`
	Platform      string      `json:"platform,omitempty"`
	Details       string      `json:"details,omitempty"`
	State         string      `json:"state,omitempty"`
	Timestamps    *Timestamps `json:"timestamps,omitempty"`
	CreatedAt     int64       `json:"created_at,omitempty"`
}

// Timestamps are epoch milliseconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// GameActivity returns the first activity of type [ActivityPlaying], or nil.
func (p *Presence) GameActivity() *Activity {
	for i := range p.Activities {
		if p.Activities[i].Type == ActivityPlaying {
			return &p.Activities[i]
		}
	}
	return nil
}

// Start returns the activity start in epoch milliseconds, or 0 when absent.
func (a *Activity) Start() int64 {
	if a.Timestamps == nil {
		return 0
	}
	return a.Timestamps.Start
}

// Snowflake is a Discord id. It decodes from either a JSON string or a bare
// number, keeping every digit.
type Snowflake string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snowflake(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	*s = Snowflake(n.String())
	return nil
}
