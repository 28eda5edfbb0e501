package bridge

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"tools.zach/dev/steamthing/internal/protocol"
)

// ///////////////////////////////////////////////
// Configuration
// ///////////////////////////////////////////////

// ConnConfig tunes display websocket connections.
type ConnConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	// SendBuffer is the number of queued events before a connection is
	// considered too slow and dropped.
	SendBuffer int
}

// DefaultConnConfig returns the connection settings used by the daemon.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 << 10,
		SendBuffer:     256,
	}
}

// ///////////////////////////////////////////////
// Hub
// ///////////////////////////////////////////////

// Hub fans controller events out to every connected display. It implements
// the controller's Emitter: Emit never blocks, and a connection whose queue
// is full is dropped.
type Hub struct {
	cfg      ConnConfig
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// conn is one display websocket.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once
}

// NewHub returns an empty Hub. checkOrigin gates websocket upgrades; nil
// accepts every origin.
func NewHub(cfg ConnConfig, log *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		conns:    make(map[*conn]struct{}),
	}
}

// Emit broadcasts ev to all connections.
func (h *Hub) Emit(ev protocol.Event) {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		h.log.Error("encoding event", "type", ev.EventType(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			h.log.Warn("display connection too slow, dropping", "conn", c.id)
			h.removeLocked(c)
		}
	}
}

// Len returns the number of connected displays.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every display and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.conns {
		h.removeLocked(c)
	}
}

// serve upgrades r and runs the connection until it ends. attach must call
// join exactly once with the events the display starts from; the connection
// is registered inside join, so a caller that blocks emission around join
// loses no event between the snapshot and registration. Each decoded command
// is passed to dispatch on the read goroutine, so commands from one display
// run in order.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, attach func(join func(initial ...protocol.Event)), dispatch func(protocol.Command)) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, max(h.cfg.SendBuffer, 4)),
		hub:  h,
	}

	var (
		joined bool
		n      int
	)
	attach(func(initial ...protocol.Event) {
		joined, n = h.register(c, initial)
	})
	if !joined {
		ws.Close()
		return
	}

	h.log.Info("display connected", "conn", c.id, "remote", r.RemoteAddr, "displays", n)
	go c.writePump()
	c.readPump(dispatch)
}

// register queues initial on c and adds it to the fan-out. It reports false
// once the hub is closed.
func (h *Hub) register(c *conn, initial []protocol.Event) (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, 0
	}
	for _, ev := range initial {
		data, err := protocol.EncodeEvent(ev)
		if err != nil {
			h.log.Error("encoding initial event", "type", ev.EventType(), "error", err)
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
	h.conns[c] = struct{}{}
	return true, len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	c.once.Do(func() { close(c.send) })
	h.log.Info("display disconnected", "conn", c.id, "displays", len(h.conns))
}

// ///////////////////////////////////////////////
// Pumps
// ///////////////////////////////////////////////

func (c *conn) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.remove(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.Debug("display write failed", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.log.Debug("display ping failed", "conn", c.id, "error", err)
				return
			}
		}
	}
}

func (c *conn) readPump(dispatch func(protocol.Command)) {
	cfg := c.hub.cfg
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("display connection closed unexpectedly", "conn", c.id, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		cmd, err := protocol.DecodeCommand(msg)
		if err != nil {
			c.hub.log.Warn("ignoring display message", "conn", c.id, "error", err)
			continue
		}
		dispatch(cmd)
	}
}
