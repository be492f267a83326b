// Package server wires HTTP handlers into a ServeMux for the WebSocket
// endpoint via routing helpers.
package server

import "net/http"

// routes configures and returns the ServeMux for the WebSocket listener:
// health check at the root and the chat protocol at /ws.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.webSocketHandler)
	return mux
}
