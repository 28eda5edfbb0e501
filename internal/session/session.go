// Package session reconciles a stream of presence snapshots into at most one
// active [GameSession].
//
// [Reconciler] is a pure state machine: it performs no I/O and takes no
// locks. Callers feed it the current game [Activity] (or nil) and publish the
// returned [Outcome]. Artwork is resolved outside and fed back through
// [Reconciler.ApplyArt], which drops results for sessions that have since
// been replaced.
package session

import (
	"fmt"
	"time"

	"tools.zach/dev/steamthing/internal/logger"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Activity is the game the user is currently playing, as reported by the
// presence feed.
type Activity struct {
	// Key identifies the game: the application id when present, else the name.
	Key           string
	Name          string
	ApplicationID string
	Platform      string
	// Start is the upstream activity start in epoch milliseconds, 0 if unknown.
	Start int64
}

// GameSession is the snapshot sent to the display.
type GameSession struct {
	GameID      string  `json:"gameId"`
	GameName    string  `json:"gameName"`
	GameIconURL *string `json:"gameIconUrl"`
	StartTime   int64   `json:"startTime"`
	ServerTime  int64   `json:"serverTime"`
	ElapsedTime int64   `json:"elapsedTime"`
}

// ElapsedAt returns the session's elapsed milliseconds at now for a snapshot
// that arrived at receivedAt: (serverTime - startTime) + (now - receivedAt).
func (s GameSession) ElapsedAt(receivedAt, now time.Time) int64 {
	return max((s.ServerTime-s.StartTime)+now.Sub(receivedAt).Milliseconds(), 0)
}

// Log is a display log line produced by a transition.
type Log struct {
	Level   logger.Level
	Message string
}

// ArtRequest asks the caller to resolve artwork for the active session.
type ArtRequest struct {
	Key      string
	Platform string
	// seq ties the request to the session it was issued for.
	seq uint64
}

// Outcome is what a transition asks the caller to publish.
type Outcome struct {
	// Emit is true when the display must receive a gameSession event.
	// Session is then the new snapshot, or nil for "no session".
	Emit    bool
	Session *GameSession
	Logs    []Log
	// Art, when non-nil, must be resolved and passed to ApplyArt.
	Art *ArtRequest
}

// ///////////////////////////////////////////////
// Reconciler
// ///////////////////////////////////////////////

// Reconciler tracks the active game session. The zero value is ready to use.
// It is not safe for concurrent use.
type Reconciler struct {
	current *GameSession
	// lastKey is the key of the last game observed, kept apart from current
	// so a missing session under a known key can be detected and rebuilt.
	lastKey    string
	platform   string
	artPending bool
	seq        uint64
}

// Current returns a copy of the active session.
func (r *Reconciler) Current() (GameSession, bool) {
	if r.current == nil {
		return GameSession{}, false
	}
	return *r.current, true
}

// Observe applies one presence snapshot. act is nil when no game is running.
func (r *Reconciler) Observe(act *Activity, now time.Time) Outcome {
	if act == nil {
		return r.End(now)
	}

	var out Outcome
	switch {
	case act.Key != r.lastKey:
		out = r.create(act, now)
		out.Logs = append([]Log{{logger.Info, "Started playing: " + act.Name}}, out.Logs...)
	case r.current == nil:
		out = r.create(act, now)
		out.Logs = append([]Log{{logger.Warn, "Session missing for " + act.Name + ", rebuilding"}}, out.Logs...)
	default:
		if r.current.GameIconURL == nil && !r.artPending {
			r.artPending = true
			out.Art = &ArtRequest{Key: r.current.GameID, Platform: r.platform, seq: r.seq}
		}
	}
	r.lastKey = act.Key
	return out
}

// End destroys the active session, if any. The outcome emits a null session
// and logs the duration only when a session existed.
func (r *Reconciler) End(now time.Time) Outcome {
	r.lastKey = ""
	if r.current == nil {
		return Outcome{}
	}

	minutes := max(now.UnixMilli()-r.current.StartTime, 0) / int64(time.Minute/time.Millisecond)
	r.current = nil
	r.platform = ""
	r.artPending = false
	r.seq++
	return Outcome{
		Emit: true,
		Logs: []Log{{logger.Info, fmt.Sprintf("Game session ended. Duration: %d minutes", minutes)}},
	}
}

// ApplyArt stores resolved artwork for the session req was issued for. It
// reports false, and changes nothing visible, when that session is gone or
// art is empty; an empty result lets a later snapshot retry.
func (r *Reconciler) ApplyArt(req ArtRequest, art string, now time.Time) (GameSession, bool) {
	if r.current == nil || req.seq != r.seq {
		return GameSession{}, false
	}
	r.artPending = false
	if art == "" {
		return GameSession{}, false
	}

	nowMs := now.UnixMilli()
	r.current.GameIconURL = &art
	r.current.ServerTime = nowMs
	r.current.ElapsedTime = max(nowMs-r.current.StartTime, 0)
	return *r.current, true
}

func (r *Reconciler) create(act *Activity, now time.Time) Outcome {
	nowMs := now.UnixMilli()
	start := act.Start
	if start <= 0 {
		start = nowMs
	}

	r.seq++
	r.current = &GameSession{
		GameID:     act.Key,
		GameName:   act.Name,
		StartTime:  start,
		ServerTime: nowMs,
	}
	r.platform = act.Platform
	r.artPending = true

	snap := *r.current
	return Outcome{
		Emit:    true,
		Session: &snap,
		Art:     &ArtRequest{Key: act.Key, Platform: act.Platform, seq: r.seq},
	}
}
