// Package bridge exposes the controller to display surfaces over HTTP and a
// websocket. It is the message-passing shim: displays send commands and
// receive the controller's events; REST endpoints return snapshots.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/protocol"
	"tools.zach/dev/steamthing/internal/session"
	"tools.zach/dev/steamthing/internal/steam"
)

const maxCommandBytes = 64 << 10

// Controller is the controller surface the bridge serves.
type Controller interface {
	Status() protocol.ConnectionInfo
	Logs() []logger.Entry
	Session() *session.GameSession
	Summary() *steam.PlayerSummary
	Dispatch(ctx context.Context, cmd protocol.Command)
	// WithSnapshot calls fn with the current status and logs while no event
	// can be emitted.
	WithSnapshot(fn func(protocol.ConnectionInfo, []logger.Entry))
}

// Options configures [NewServer].
type Options struct {
	// AllowedOrigins is passed to rs/cors; empty allows every origin.
	AllowedOrigins []string
	Conn           ConnConfig
	Logger         *slog.Logger
}

// Server routes display traffic to a Controller.
type Server struct {
	ctrl Controller
	hub  *Hub
	cors *cors.Cors
	log  *slog.Logger
	// ctx outlives individual requests; commands run under it.
	ctx context.Context
}

// NewServer builds a Server. Commands are dispatched with ctx, which should
// live as long as the daemon.
func NewServer(ctx context.Context, ctrl Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Conn == (ConnConfig{}) {
		opts.Conn = DefaultConnConfig()
	}
	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
		AllowedHeaders: []string{"*"},
	})
	s := &Server{ctrl: ctrl, cors: c, log: opts.Logger, ctx: ctx}
	s.hub = NewHub(opts.Conn, opts.Logger, s.originAllowed)
	return s
}

// Hub returns the event fan-out; register it as the controller's emitter.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors.Handler)

	r.Get("/healthz", s.health)
	r.Get("/ws", s.websocket)
	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.status)
		api.Get("/logs", s.logs)
		api.Get("/session", s.session)
		api.Get("/summary", s.summary)
		api.Post("/commands", s.command)
	})
	return r
}

// originAllowed gates websocket upgrades with the CORS origin list.
// Requests without an Origin header come from non-browser clients.
func (s *Server) originAllowed(r *http.Request) bool {
	return r.Header.Get("Origin") == "" || s.cors.OriginAllowed(r)
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": s.ctrl.Status().Status,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) logs(w http.ResponseWriter, _ *http.Request) {
	entries := s.ctrl.Logs()
	if entries == nil {
		entries = []logger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// session writes the active session, or JSON null.
func (s *Server) session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Session())
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	summary := s.ctrl.Summary()
	if summary == nil {
		writeError(w, http.StatusNotFound, "no_summary", "No player summary fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Could not read body")
		return
	}
	cmd, err := protocol.DecodeCommand(body)
	if err != nil {
		code := "invalid_command"
		if errors.Is(err, protocol.ErrUnknownType) {
			code = "unknown_command"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	s.ctrl.Dispatch(s.ctx, cmd)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "type": cmd.CommandType()})
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	attach := func(join func(...protocol.Event)) {
		s.ctrl.WithSnapshot(func(info protocol.ConnectionInfo, logs []logger.Entry) {
			join(protocol.ConnectionStatusEvent{Info: info}, protocol.LogsEvent{Entries: logs})
		})
	}
	s.hub.serve(w, r, attach, func(cmd protocol.Command) {
		s.ctrl.Dispatch(s.ctx, cmd)
	})
}

// ///////////////////////////////////////////////
// Serving
// ///////////////////////////////////////////////

// Serve runs an HTTP server on ln until ctx is cancelled, then shuts it down
// gracefully and disconnects all displays.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.hub.Close()
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
