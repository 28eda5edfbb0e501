// Package lanyard is a client for the Lanyard presence WebSocket, which
// streams the Discord activities of subscribed users.
//
// [Dial] opens a [Socket], subscribes, and arms the heartbeat. Presences from
// INIT_STATE and PRESENCE_UPDATE frames are handed to a callback on the read
// goroutine. A Socket never reconnects by itself; callers watch
// [Socket.Done] and decide.
package lanyard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"tools.zach/dev/steamthing/internal/logger"
)

// DefaultURL is the public Lanyard socket endpoint.
const DefaultURL = "wss://api.lanyard.rest/socket"

// HeartbeatInterval is how often the client sends op 3.
const HeartbeatInterval = 30 * time.Second

const writeTimeout = 10 * time.Second

// ErrClosed is reported by [Socket.Err] after [Socket.Close].
var ErrClosed = errors.New("lanyard: socket closed")

// Config configures [Dial].
type Config struct {
	// URL defaults to DefaultURL.
	URL string
	// UserIDs are the Discord users to subscribe to. At least one is required.
	UserIDs []string
	// Clock drives the heartbeat; defaults to the real clock.
	Clock clockwork.Clock
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ///////////////////////////////////////////////
// Socket
// ///////////////////////////////////////////////

// Socket is one live Lanyard connection.
type Socket struct {
	conn       *websocket.Conn
	heartbeat  clockwork.Ticker
	onPresence func(Presence)
	log        *slog.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

// Dial connects to Lanyard, subscribes to cfg.UserIDs and starts the read
// and heartbeat goroutines. onPresence is called from the read goroutine for
// every presence received.
func Dial(ctx context.Context, cfg Config, onPresence func(Presence)) (*Socket, error) {
	sub, err := EncodeSubscribe(cfg.UserIDs)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	conn, _, err := cfg.Dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing lanyard: %w", err)
	}
	conn.SetReadLimit(MaxFrameSize)

	s := &Socket{
		conn:       conn,
		onPresence: onPresence,
		log:        cfg.Logger,
		done:       make(chan struct{}),
	}
	if err := s.write(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending subscribe: %w", err)
	}
	s.heartbeat = cfg.Clock.NewTicker(HeartbeatInterval)

	go s.readLoop()
	go s.heartbeatLoop()
	return s, nil
}

// Done is closed when the socket stops for any reason.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Err reports why the socket stopped. It is nil while the socket is live and
// [ErrClosed] after [Socket.Close].
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame and tears the connection down. It does not wait
// for the read goroutine and is safe to call more than once.
func (s *Socket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.finish(ErrClosed)
	return nil
}

func (s *Socket) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.heartbeat.Stop()
		s.conn.Close()
		close(s.done)
	})
}

func (s *Socket) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Socket) readLoop() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(fmt.Errorf("reading lanyard: %w", err))
			return
		}

		f, err := DecodeFrame(msg)
		if err != nil {
			s.log.Warn("skipping malformed lanyard frame", "error", err)
			continue
		}
		logger.Trace(s.log, "lanyard frame", "op", int(f.Op), "t", f.Type)

		if f.Op != OpEvent || (f.Type != EventInitState && f.Type != EventPresenceUpdate) {
			continue
		}
		presences, err := DecodePresences(f)
		if err != nil {
			s.log.Warn("skipping undecodable presence", "t", f.Type, "error", err)
			continue
		}
		for _, p := range presences {
			s.onPresence(p)
		}
	}
}

func (s *Socket) heartbeatLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.heartbeat.Chan():
			if err := s.write(EncodeHeartbeat()); err != nil {
				s.finish(fmt.Errorf("sending heartbeat: %w", err))
				return
			}
		}
	}
}
