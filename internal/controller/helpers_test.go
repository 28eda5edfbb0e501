package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/lanyard"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/session"
	"tools.zach/dev/steamthing/internal/steam"
)

// ///////////////////////////////////////////////
// Fake Steam API
// ///////////////////////////////////////////////

type fakeSteam struct {
	mu           sync.Mutex
	keys         []string
	probeErr     error
	gate         chan struct{}
	summary      steam.PlayerSummary
	summaryErr   error
	summaryCalls int
	games        []steam.RecentGame
	imageErr     error

	// summaryHold makes PlayerSummary signal summaryStarted and then wait
	// for its context to end.
	summaryHold    bool
	summaryStarted chan struct{}
}

func (f *fakeSteam) factory(key string) ProfileAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f
}

func (f *fakeSteam) keyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func (f *fakeSteam) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryCalls
}

func (f *fakeSteam) Probe(ctx context.Context) error {
	f.mu.Lock()
	gate, err := f.gate, f.probeErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSteam) PlayerSummary(ctx context.Context, steamID string) (*steam.PlayerSummary, error) {
	f.mu.Lock()
	f.summaryCalls++
	if f.summaryHold {
		started := f.summaryStarted
		f.mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	s := f.summary
	s.SteamID = steamID
	return &s, nil
}

func (f *fakeSteam) RecentlyPlayedGames(context.Context, string, int) ([]steam.RecentGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.games, nil
}

func (f *fakeSteam) FetchImage(context.Context, string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imageErr != nil {
		return nil, "", f.imageErr
	}
	return []byte("img"), "image/png", nil
}

func (f *fakeSteam) IconURL(appID int, hash string) string {
	return fmt.Sprintf("cdn/%d/%s.jpg", appID, hash)
}

// ///////////////////////////////////////////////
// Fake Presence Feed
// ///////////////////////////////////////////////

type fakeConn struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// drop ends the connection as if the server went away.
func (c *fakeConn) drop() { c.once.Do(func() { close(c.done) }) }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFeed struct {
	mu         sync.Mutex
	ids        []string
	dialErr    error
	conns      []*fakeConn
	onPresence func(lanyard.Presence)
}

func (f *fakeFeed) dial(_ context.Context, id string, onPresence func(lanyard.Presence)) (FeedConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	conn := &fakeConn{done: make(chan struct{})}
	f.conns = append(f.conns, conn)
	f.onPresence = onPresence
	return conn, nil
}

func (f *fakeFeed) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func (f *fakeFeed) lastID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return ""
	}
	return f.ids[len(f.ids)-1]
}

func (f *fakeFeed) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

func (f *fakeFeed) push(p lanyard.Presence) {
	f.mu.Lock()
	fn := f.onPresence
	f.mu.Unlock()
	fn(p)
}

// ///////////////////////////////////////////////
// Event Recorder
// ///////////////////////////////////////////////

type recorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *recorder) Emit(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) ofType(typ string) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Event
	for _, ev := range r.events {
		if ev.EventType() == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) statuses() []protocol.Status {
	var out []protocol.Status
	for _, ev := range r.ofType(protocol.TypeConnectionStatus) {
		out = append(out, ev.(protocol.ConnectionStatusEvent).Info.Status)
	}
	return out
}

func (r *recorder) sessions() []*session.GameSession {
	var out []*session.GameSession
	for _, ev := range r.ofType(protocol.TypeGameSession) {
		out = append(out, ev.(protocol.GameSessionEvent).Session)
	}
	return out
}

// hasLog reports whether a log event at level contains substr.
func (r *recorder) hasLog(level logger.Level, substr string) bool {
	for _, ev := range r.ofType(protocol.TypeLog) {
		e := ev.(protocol.LogEvent).Entry
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) countLogs(substr string) int {
	n := 0
	for _, ev := range r.ofType(protocol.TypeLog) {
		if strings.Contains(ev.(protocol.LogEvent).Entry.Message, substr) {
			n++
		}
	}
	return n
}

// ///////////////////////////////////////////////
// Harness
// ///////////////////////////////////////////////

type harness struct {
	c     *Controller
	steam *fakeSteam
	feed  *fakeFeed
	clock *clockwork.FakeClock
	rec   *recorder
}

var testAssets = fstest.MapFS{
	"xbox.png":        {Data: []byte("xbox")},
	"playstation.png": {Data: []byte("ps")},
}

// newController builds an idle controller over fakes with no settings
// applied yet.
func newController(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		steam: &fakeSteam{},
		feed:  &fakeFeed{},
		clock: clockwork.NewFakeClock(),
		rec:   &recorder{},
	}
	h.c = New(Options{
		NewProfileAPI: h.steam.factory,
		DialFeed:      h.feed.dial,
		Assets:        testAssets,
		Clock:         h.clock,
		Emitter:       h.rec,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(h.c.Stop)
	return h
}

// newHarness is newController with s applied. Auto-connect is forced off so
// the controller stays disconnected, and the recorder starts empty.
func newHarness(t *testing.T, s config.Settings) *harness {
	t.Helper()
	h := newController(t)
	s.AutoConnect = false
	h.c.UpdateSettings(context.Background(), s)
	h.rec.reset()
	return h
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.APIKey = "key-1"
	s.TrackedID = "76561198000000001"
	return s
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.c.Connect(context.Background())
	if got := h.c.Status().Status; got != protocol.StatusConnected {
		t.Fatalf("status after Connect = %q, want connected", got)
	}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func dataURI(mime, data string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString([]byte(data))
}

func game(name, appID, platform string, start int64) lanyard.Presence {
	act := lanyard.Activity{
		Name:          name,
		Type:          lanyard.ActivityPlaying,
		ApplicationID: lanyard.Snowflake(appID),
		Platform:      platform,
	}
	if start > 0 {
		act.Timestamps = &lanyard.Timestamps{Start: start}
	}
	return lanyard.Presence{Activities: []lanyard.Activity{{Name: "Spotify", Type: 2}, act}}
}

var errBoom = errors.New("boom")
