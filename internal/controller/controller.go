// Package controller owns the SteamThing connection state machine.
//
// A single [Controller] ties the Steam Web API (polled) and the Lanyard
// presence feed (pushed) into the connection status, log buffer, player
// summary, and game session that the display renders. All state sits behind
// one mutex. Slow work (HTTP probes, profile fetches, feed dials, artwork)
// runs unlocked and re-checks a generation counter before touching state, so
// results that arrive after a disconnect or reconnect are dropped.
//
// Events are emitted while the mutex is held so the display sees them in
// state order. An [Emitter] must therefore return promptly and must never
// call back into the Controller.
package controller

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/steamthing/internal/artwork"
	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/lanyard"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/poller"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/session"
	"tools.zach/dev/steamthing/internal/steam"
)

// Timing constants.
const (
	FeedReconnectDelay = 3 * time.Second
	KeyReconnectDelay  = 500 * time.Millisecond
)

// ///////////////////////////////////////////////
// Dependencies
// ///////////////////////////////////////////////

// ProfileAPI is the Steam client surface the controller uses.
type ProfileAPI interface {
	artwork.SteamAPI
	Probe(ctx context.Context) error
}

// FeedConn is a live presence feed.
type FeedConn interface {
	Done() <-chan struct{}
	Close() error
}

// FeedDialer opens a presence feed for one Discord user.
type FeedDialer func(ctx context.Context, userID string, onPresence func(lanyard.Presence)) (FeedConn, error)

// Emitter delivers events to the display.
type Emitter interface {
	Emit(protocol.Event)
}

// EmitterFunc adapts a function to [Emitter].
type EmitterFunc func(protocol.Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev protocol.Event) { f(ev) }

// Options configures [New]. NewProfileAPI and DialFeed are required.
type Options struct {
	// NewProfileAPI builds a Steam client for an API key.
	NewProfileAPI func(apiKey string) ProfileAPI
	// DialFeed opens the presence feed.
	DialFeed FeedDialer
	// Assets holds xbox.png and playstation.png.
	Assets fs.FS
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Emitter may also be set later with SetEmitter.
	Emitter Emitter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Ignore reports game names that must not start a session.
	Ignore func(name string) bool
}

// ///////////////////////////////////////////////
// Controller
// ///////////////////////////////////////////////

// Controller is the presence/session state machine. Create it with [New].
type Controller struct {
	newAPI   func(string) ProfileAPI
	dialFeed FeedDialer
	clock    clockwork.Clock
	log      *slog.Logger
	art      *artwork.Resolver
	poller   *poller.Poller

	// ctx bounds background work; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	emitter Emitter
	ignore  func(string) bool
	ring    *logger.Ring

	settings config.Settings
	applied  bool
	started  bool

	status        protocol.Status
	lastConnected *int64
	lastError     *string
	api           ProfileAPI
	// gen advances on every connect attempt and disconnect.
	gen uint64

	subs map[string]struct{}

	feed FeedConn
	// feedGen advances whenever the feed is opened or torn down on purpose.
	feedGen   uint64
	feedRetry clockwork.Timer
	keyRetry  clockwork.Timer

	sessions session.Reconciler
	summary  *steam.PlayerSummary
}

// New builds an idle, disconnected Controller.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Ignore == nil {
		opts.Ignore = func(string) bool { return false }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		newAPI:   opts.NewProfileAPI,
		dialFeed: opts.DialFeed,
		clock:    opts.Clock,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		emitter:  opts.Emitter,
		ignore:   opts.Ignore,
		ring:     logger.NewRing(config.DefaultMaxLogs),
		settings: config.DefaultSettings(),
		status:   protocol.StatusDisconnected,
		subs:     make(map[string]struct{}),
	}
	c.poller = poller.New(opts.Clock, c.poll)
	c.art = artwork.New(opts.Assets, func(level logger.Level, msg string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.addLog(level, msg)
	})
	return c
}

// SetEmitter replaces the event sink.
func (c *Controller) SetEmitter(e Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitter = e
}

// SetIgnoreFilter replaces the game-name ignore predicate. nil ignores nothing.
func (c *Controller) SetIgnoreFilter(ignore func(name string) bool) {
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignore = ignore
}

// ///////////////////////////////////////////////
// Snapshots
// ///////////////////////////////////////////////

// Status returns the connection snapshot.
func (c *Controller) Status() protocol.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Logs returns a copy of the log buffer, oldest first.
func (c *Controller) Logs() []logger.Entry {
	return c.ring.Entries()
}

// WithSnapshot calls fn with the connection snapshot and the log buffer
// while holding the state lock, so no event is emitted until fn returns. fn
// may hand events to the emitter but must not call back into the Controller.
func (c *Controller) WithSnapshot(fn func(protocol.ConnectionInfo, []logger.Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.statusLocked(), c.ring.Entries())
}

// Session returns the active game session, or nil.
func (c *Controller) Session() *session.GameSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions.Current(); ok {
		return &s
	}
	return nil
}

// Summary returns the last polled player summary, or nil.
func (c *Controller) Summary() *steam.PlayerSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return nil
	}
	s := *c.summary
	return &s
}

// Settings returns the applied settings.
func (c *Controller) Settings() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Polling reports whether the profile poller is armed.
func (c *Controller) Polling() bool {
	return c.poller.Active()
}

func (c *Controller) statusLocked() protocol.ConnectionInfo {
	info := protocol.ConnectionInfo{Status: c.status, TrackedID: c.settings.TrackedID}
	if c.lastConnected != nil {
		v := *c.lastConnected
		info.LastConnected = &v
	}
	if c.lastError != nil {
		v := *c.lastError
		info.LastError = &v
	}
	return info
}

// ///////////////////////////////////////////////
// Emission
// ///////////////////////////////////////////////

// emit sends ev to the display. The caller must hold c.mu.
func (c *Controller) emit(ev protocol.Event) {
	if c.emitter != nil {
		c.emitter.Emit(ev)
	}
}

func (c *Controller) emitStatus() {
	c.emit(protocol.ConnectionStatusEvent{Info: c.statusLocked()})
}

// addLog appends to the ring, mirrors the line to slog, and emits a log
// event. The caller must hold c.mu.
func (c *Controller) addLog(level logger.Level, msg string) {
	e := logger.NewEntry(c.clock.Now(), level, msg)
	c.ring.Append(e)
	c.log.Log(context.Background(), level.Slog(), msg)
	c.emit(protocol.LogEvent{Entry: e})
}

func (c *Controller) addLogf(level logger.Level, format string, args ...any) {
	c.addLog(level, fmt.Sprintf(format, args...))
}

// ClearLogs empties the buffer, logs that it did, and re-sends the buffer.
func (c *Controller) ClearLogs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.Clear()
	c.addLog(logger.Info, "Logs cleared")
	c.emit(protocol.LogsEvent{Entries: c.ring.Entries()})
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
