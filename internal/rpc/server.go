// Package rpc exposes the chat flow over WebSocket. Each connection is
// one widget instance: it gets its own wallet session and flow
// controller, and tears both down on disconnect.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/storage"
	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/internal/wallet"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

// ServiceFactory builds the token service for one widget session.
type ServiceFactory func(session *wallet.Session) token.Service

// Server serves the widget WebSocket endpoint.
type Server struct {
	store       *storage.Storage
	bus         *event.Bus
	explorerURL string
	newService  ServiceFactory
	log         *logging.Logger

	server   *http.Server
	listener net.Listener
}

// ServerConfig holds construction parameters for a Server.
type ServerConfig struct {
	Store       *storage.Storage
	Bus         *event.Bus
	ExplorerURL string
	NewService  ServiceFactory
}

// NewServer creates the widget server.
func NewServer(cfg *ServerConfig) *Server {
	return &Server{
		store:       cfg.Store,
		bus:         cfg.Bus,
		explorerURL: cfg.ExplorerURL,
		newService:  cfg.NewService,
		log:         logging.GetDefault().Component("rpc"),
	}
}

// Start begins listening on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Widget server error", "error", err)
		}
	}()

	s.log.Info("Widget server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// corsMiddleware allows the embedded widget to reach the daemon from any
// page origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
