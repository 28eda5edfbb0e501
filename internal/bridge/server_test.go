package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/session"
	"tools.zach/dev/steamthing/internal/steam"
)

// ///////////////////////////////////////////////
// Fake Controller
// ///////////////////////////////////////////////

type fakeCtrl struct {
	mu      sync.Mutex
	info    protocol.ConnectionInfo
	logs    []logger.Entry
	session *session.GameSession
	summary *steam.PlayerSummary
	cmds    []protocol.Command
	// snapshotted runs inside WithSnapshot after fn, standing in for a state
	// change the controller emits right after a display attaches.
	snapshotted func()
}

func (f *fakeCtrl) Status() protocol.ConnectionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeCtrl) Logs() []logger.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs
}

func (f *fakeCtrl) Session() *session.GameSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeCtrl) Summary() *steam.PlayerSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary
}

func (f *fakeCtrl) Dispatch(_ context.Context, cmd protocol.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

func (f *fakeCtrl) WithSnapshot(fn func(protocol.ConnectionInfo, []logger.Entry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.info, f.logs)
	if f.snapshotted != nil {
		f.snapshotted()
	}
}

func (f *fakeCtrl) commands() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.cmds...)
}

func newTestServer(t *testing.T, ctrl *fakeCtrl, origins ...string) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(context.Background(), ctrl, Options{
		AllowedOrigins: origins,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

// ///////////////////////////////////////////////
// REST Tests
// ///////////////////////////////////////////////

func TestHealth(t *testing.T) {
	ctrl := &fakeCtrl{info: protocol.ConnectionInfo{Status: protocol.StatusConnected}}
	_, ts := newTestServer(t, ctrl)

	code, body := get(t, ts.URL+"/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body != `{"connection":"connected","status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}

func TestSnapshots(t *testing.T) {
	icon := "data:image/png;base64,AA=="
	ctrl := &fakeCtrl{
		info: protocol.ConnectionInfo{Status: protocol.StatusDisconnected, TrackedID: "42"},
		session: &session.GameSession{
			GameID: "570", GameName: "Dota 2", GameIconURL: &icon, StartTime: 1, ServerTime: 2, ElapsedTime: 1,
		},
	}
	_, ts := newTestServer(t, ctrl)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/api/status", http.StatusOK, `"trackedSteamId":"42"`},
		{"/api/logs", http.StatusOK, `[]`},
		{"/api/session", http.StatusOK, `"gameIconUrl":"data:image/png;base64,AA=="`},
		{"/api/summary", http.StatusNotFound, `"no_summary"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, ts.URL+tt.path)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body = %s, want it to contain %s", body, tt.contains)
			}
		})
	}
}

func TestSnapshots_NoSession(t *testing.T) {
	_, ts := newTestServer(t, &fakeCtrl{})
	if _, body := get(t, ts.URL+"/api/session"); body != "null" {
		t.Errorf("body = %s, want null", body)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantCmd  protocol.Command
		wantErr  string
	}{
		{"connect", `{"type":"connect"}`, http.StatusAccepted, protocol.Connect{}, ""},
		{"subscribe", `{"type":"subscribe","request":"player-summary"}`, http.StatusAccepted,
			protocol.Subscribe{Topic: "player-summary"}, ""},
		{"malformed", `{"type":`, http.StatusBadRequest, nil, "invalid_command"},
		{"unknown", `{"type":"reboot"}`, http.StatusBadRequest, nil, "unknown_command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeCtrl{}
			_, ts := newTestServer(t, ctrl)

			resp, err := http.Post(ts.URL+"/api/commands", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			cmds := ctrl.commands()
			if tt.wantCmd == nil {
				if len(cmds) != 0 {
					t.Errorf("dispatched %v", cmds)
				}
				if !strings.Contains(string(body), tt.wantErr) {
					t.Errorf("body = %s, want %s", body, tt.wantErr)
				}
				return
			}
			if len(cmds) != 1 || cmds[0] != tt.wantCmd {
				t.Errorf("dispatched %v, want %v", cmds, tt.wantCmd)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, &fakeCtrl{}, "http://display.local")

	tests := []struct {
		origin string
		want   string
	}{
		{"http://display.local", "http://display.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Websocket Tests
// ///////////////////////////////////////////////

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readEvent(t *testing.T, ws *websocket.Conn) protocol.Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

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

func TestWebsocket_InitialEventsAndBroadcast(t *testing.T) {
	ctrl := &fakeCtrl{
		info: protocol.ConnectionInfo{Status: protocol.StatusConnected},
		logs: []logger.Entry{{Timestamp: 1, Level: logger.Info, Message: "hello"}},
	}
	s, ts := newTestServer(t, ctrl)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	status, ok := readEvent(t, ws).(protocol.ConnectionStatusEvent)
	if !ok || status.Info.Status != protocol.StatusConnected {
		t.Fatalf("first event = %+v, want connectionStatus", status)
	}
	logs, ok := readEvent(t, ws).(protocol.LogsEvent)
	if !ok || len(logs.Entries) != 1 || logs.Entries[0].Message != "hello" {
		t.Fatalf("second event = %+v, want logs", logs)
	}

	waitFor(t, "registration", func() bool { return s.Hub().Len() == 1 })
	s.Hub().Emit(protocol.GameSessionEvent{})
	if ev, ok := readEvent(t, ws).(protocol.GameSessionEvent); !ok || ev.Session != nil {
		t.Errorf("broadcast = %+v, want null gameSession", ev)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"get","request":"status"}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "dispatch", func() bool { return len(ctrl.commands()) == 1 })
	if got := ctrl.commands()[0]; got != (protocol.Get{Request: "status"}) {
		t.Errorf("dispatched %+v", got)
	}
}

func TestWebsocket_EventAfterSnapshotNotLost(t *testing.T) {
	ctrl := &fakeCtrl{info: protocol.ConnectionInfo{Status: protocol.StatusConnecting}}
	s, ts := newTestServer(t, ctrl)
	ctrl.snapshotted = func() {
		s.Hub().Emit(protocol.ConnectionStatusEvent{Info: protocol.ConnectionInfo{Status: protocol.StatusConnected}})
	}

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	want := []string{protocol.TypeConnectionStatus, protocol.TypeLogs, protocol.TypeConnectionStatus}
	var last protocol.Event
	for i, typ := range want {
		last = readEvent(t, ws)
		if last.EventType() != typ {
			t.Fatalf("event %d = %s, want %s", i, last.EventType(), typ)
		}
	}
	if got := last.(protocol.ConnectionStatusEvent).Info.Status; got != protocol.StatusConnected {
		t.Errorf("latest status = %s, want connected", got)
	}
}

func TestWebsocket_BadMessageKeepsConnection(t *testing.T) {
	ctrl := &fakeCtrl{}
	_, ts := newTestServer(t, ctrl)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.WriteMessage(websocket.TextMessage, []byte(`not json`))
	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"clearLogs"}`))
	waitFor(t, "dispatch", func() bool { return len(ctrl.commands()) == 1 })
}

func TestWebsocket_OriginRejected(t *testing.T) {
	_, ts := newTestServer(t, &fakeCtrl{}, "http://display.local")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err == nil {
		t.Fatal("dial succeeded for a disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

// ///////////////////////////////////////////////
// Hub Tests
// ///////////////////////////////////////////////

func TestHub_DropsSlowConnection(t *testing.T) {
	h := NewHub(DefaultConnConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	slow := &conn{id: "slow", send: make(chan []byte), hub: h}
	h.conns[slow] = struct{}{}

	h.Emit(protocol.LogEvent{Entry: logger.Entry{Message: "x"}})

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	if _, ok := <-slow.send; ok {
		t.Error("send queue not closed")
	}
}

func TestHub_EmitEncodesOnce(t *testing.T) {
	h := NewHub(DefaultConnConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	a := &conn{id: "a", send: make(chan []byte, 1), hub: h}
	b := &conn{id: "b", send: make(chan []byte, 1), hub: h}
	h.conns[a], h.conns[b] = struct{}{}, struct{}{}

	h.Emit(protocol.ConnectionStatusEvent{Info: protocol.ConnectionInfo{Status: protocol.StatusError}})

	for _, c := range []*conn{a, b} {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(<-c.send, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != protocol.TypeConnectionStatus {
			t.Errorf("%s got type %q", c.id, env.Type)
		}
	}
}
