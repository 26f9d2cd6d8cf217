package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/config"
	"github.com/oszuidwest/zwfm-noisemeter/internal/level"
	"github.com/oszuidwest/zwfm-noisemeter/internal/meter"
	"github.com/oszuidwest/zwfm-noisemeter/internal/server"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
)

// levelsBuffer is the per-connection queue of pending level messages.
// Readings are dropped for a client that falls this far behind.
const levelsBuffer = 32

// Server is an HTTP server that provides the live feed for the noise meter.
type Server struct {
	config   *config.Config
	manager  *meter.Manager
	commands *server.CommandHandler
	devices  func() []types.AudioDevice
}

// NewServer returns a new Server for the meters in mgr. Sessions started by
// clients are bound to ctx.
func NewServer(ctx context.Context, cfg *config.Config, mgr *meter.Manager) *Server {
	s := &Server{
		config:  cfg,
		manager: mgr,
		devices: sync.OnceValue(server.Devices),
	}
	s.commands = server.NewCommandHandler(ctx, cfg, mgr, s.buildStatus)
	return s
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Sampling goroutines must never block on a slow client.
	levels := make(chan types.LevelsMessage, levelsBuffer)
	unsubscribe := s.manager.Subscribe(func(u meter.Update) {
		select {
		case levels <- levelsMessage(&u):
		default:
		}
	})
	defer unsubscribe()

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, levels, done, statusUpdate)
}

// levelsMessage converts a meter update to its wire form.
func levelsMessage(u *meter.Update) types.LevelsMessage {
	return types.LevelsMessage{
		Type:    "levels",
		Profile: u.Profile,
		Reading: int(u.Reading),
		Display: u.Display,
		Loud:    u.Loud,
		Stats:   meter.Summarize(&u.Stats),
	}
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop forwards level messages and periodic status.
func (s *Server) runWebSocketEventLoop(send chan any, levels <-chan types.LevelsMessage, done, statusUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(types.StatusInterval)
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildStatus()) {
				close(send)
				return
			}
		case msg := <-levels:
			if !trySend(msg) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildStatus returns the current status of every profile.
func (s *Server) buildStatus() types.StatusResponse {
	cfg := s.config.Snapshot()

	meters := s.manager.Meters()
	profiles := make([]types.ProfileStatus, 0, len(meters))
	for _, m := range meters {
		profiles = append(profiles, m.Status())
	}

	return types.StatusResponse{
		Type:        "status",
		Location:    cfg.Location,
		AudioInput:  cfg.AudioInput,
		Platform:    runtime.GOOS,
		HighNoiseDB: cfg.HighNoiseDB,
		DisplayMin:  level.DisplayMin,
		DisplayMax:  level.DisplayMax,
		Profiles:    profiles,
		Devices:     s.devices(),
		Version:     versionInfo(&cfg),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/report", s.handleAPIReport)
	mux.HandleFunc("GET /api/events", s.handleAPIEvents)
	mux.HandleFunc("GET /api/devices", s.handleAPIDevices)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
