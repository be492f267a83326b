// Package server exposes the HTTP handlers for the WebSocket transport and
// the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// webSocketHandler upgrades the request and runs a full chat session over
// the socket, one protocol line per text frame. The protocol is identical
// to the TCP transport's, so WS and TCP users share rooms and PMs.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("addr", r.RemoteAddr).Err(err).Msg("websocket upgrade failed")
		return
	}

	s.StartConn(NewWSConn(conn, s.cfg.MaxMessageSize, s.cfg.IdleTimeout))
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus chat server is running!")
}
