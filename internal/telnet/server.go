// Package telnet provides the line-based telnet protocol adapter.
package telnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/embermud/embermud/internal/auth"
	"github.com/embermud/embermud/internal/player"
	"github.com/embermud/embermud/internal/session"
)

// Deps are the core services a connection handler needs.
type Deps struct {
	Store     *player.Store
	Auth      *auth.Authenticator
	Registry  *session.Registry
	Transfers *session.Coordinator
}

// Server is a telnet server.
type Server struct {
	addr     string
	listener net.Listener
	deps     Deps
	mu       sync.RWMutex
}

// NewServer creates a new telnet server.
func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("telnet server started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			slog.Debug("error closing listener", "error", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		handler := NewConnectionHandler(conn, s.deps)
		go handler.Handle(ctx)
	}
}
