// Package server constructs and runs the chat service: the TCP listener for
// the line protocol, the optional WebSocket endpoint, and graceful shutdown
// of every live session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server owns the shared registries and the transport listeners. One Server
// serves many sessions; every session sees the same UserRegistry,
// RoomRegistry, and ReplyRouter.
type Server struct {
	cfg      *Config
	users    *UserRegistry
	rooms    *RoomRegistry
	replies  *ReplyRouter
	bcast    *Broadcaster
	disp     *Dispatcher
	origins  *originPolicy
	upgrader websocket.Upgrader

	listener   net.Listener
	wsListener net.Listener
	httpSrv    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewServer creates a Server with freshly seeded registries. The default
// room exists before any connection is accepted.
func NewServer(cfg *Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	users := NewUserRegistry()
	rooms := NewRoomRegistry()
	origins := newOriginPolicy(cfg.AllowedOrigins)

	return &Server{
		cfg:     cfg,
		users:   users,
		rooms:   rooms,
		replies: NewReplyRouter(),
		bcast:   NewBroadcaster(users, rooms),
		disp:    NewDispatcher(),
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
}

// Start binds the TCP listener (and the WebSocket endpoint when configured)
// and begins accepting connections. It returns once listening; serving
// happens on background goroutines until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Port, err)
	}
	s.listener = listener
	log.Info().Str("addr", listener.Addr().String()).Msg("chat server listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	if s.cfg.WSPort != "" {
		wsListener, err := net.Listen("tcp", s.cfg.WSPort)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("listen on %s: %w", s.cfg.WSPort, err)
		}
		s.wsListener = wsListener

		s.httpSrv = &http.Server{
			Handler:      s.routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info().Str("addr", wsListener.Addr().String()).Msg("websocket endpoint listening")
			if err := s.httpSrv.Serve(wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("websocket endpoint failed")
			}
		}()
	}

	return nil
}

// WSAddr returns the bound address of the WebSocket listener, or the empty
// string when the endpoint is disabled.
func (s *Server) WSAddr() string {
	if s.wsListener == nil {
		return ""
	}
	return s.wsListener.Addr().String()
}

// Addr returns the bound address of the TCP listener. It is only valid
// after Start has returned successfully.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.StartConn(NewTCPConn(conn, s.cfg.MaxMessageSize, s.cfg.IdleTimeout))
	}
}

// StartConn runs a full session over an already established line-stream
// connection. Both transports funnel through here, as do tests that drive
// sessions over in-memory pipes.
func (s *Server) StartConn(conn Conn) {
	client := NewClient(conn, s.cfg.SendQueueSize)
	session := NewSession(conn, client, s.cfg, s.users, s.rooms, s.replies, s.bcast, s.disp)

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.WritePump()
	}()
	go func() {
		defer s.wg.Done()
		session.Run()

		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
	}()
}

// Registries exposes the shared registries for tests and diagnostics.
func (s *Server) Registries() (*UserRegistry, *RoomRegistry, *ReplyRouter) {
	return s.users, s.rooms, s.replies
}

// Shutdown stops accepting connections, closes every live client, and waits
// for session goroutines to finish or the timeout to expire.
func (s *Server) Shutdown(timeout time.Duration) error {
	log.Info().Msg("shutting down chat server")
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Msg("listener close failed")
		}
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("websocket endpoint shutdown failed")
		}
	}

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("chat server shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
