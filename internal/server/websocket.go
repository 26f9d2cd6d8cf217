package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Limits for live feed connections.
const (
	// MaxCommandSize bounds a single client command; commands carry at most
	// a profile name and paging parameters.
	MaxCommandSize = 4096
	// WriteTimeout bounds a single level or status write to a client.
	WriteTimeout = 5 * time.Second
)

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts live feed clients served from the meter itself or
// from the local network, where displays and overlays run.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}
	host := u.Hostname()

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost || isLocalHost(host) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// isLocalHost reports whether host is localhost, loopback or a private address.
func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// liveConn applies the write deadline to every message.
type liveConn struct {
	*websocket.Conn
}

// WriteJSON implements WebSocketConn.
func (c liveConn) WriteJSON(v any) error {
	if err := c.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// UpgradeConnection upgrades an HTTP connection to a live feed connection.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (WebSocketConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(MaxCommandSize)
	return liveConn{Conn: conn}, nil
}
