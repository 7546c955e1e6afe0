// Package gateway is the chat transport. It accepts inbound messages over a
// websocket or a JSON webhook, hands them to a Dispatcher, and delivers
// outbound text and media to the user's connected websocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/chainspeak/notify"
)

// Dispatcher accepts one inbound chat message. from is the sender's user
// address as received.
type Dispatcher func(ctx context.Context, from, body string) error

// Server routes chat traffic between HTTP clients and the bot. It implements
// notify.Notifier.
type Server struct {
	cfg      Config
	domain   string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDomain sets the chat domain stripped from addresses. It must match the
// domain the kernel uses to key sessions.
func WithDomain(domain string) Option {
	return func(s *Server) { s.domain = domain }
}

// New creates a Server. Zero config values fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Server {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	s := &Server{
		cfg:    merged,
		domain: notify.DefaultConfig().Domain,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes, dispatching inbound messages to dispatch.
func (s *Server) Handler(dispatch Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS(dispatch))
	r.Post("/messages", s.handleWebhook(dispatch))

	return r
}

// Run serves Handler on the configured address until ctx is done, then shuts
// the listener down and disconnects every client.
func (s *Server) Run(ctx context.Context, dispatch Dispatcher) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	if err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// Connected returns the number of open websocket clients for userID.
func (s *Server) Connected(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID])
}

// SendText delivers text to every client of the recipient.
func (s *Server) SendText(_ context.Context, to, text string) error {
	return s.broadcast(to, Frame{Type: FrameText, Text: text})
}

// SendMedia delivers an attachment to every client of the recipient.
func (s *Server) SendMedia(_ context.Context, to string, media notify.Media) error {
	return s.broadcast(to, Frame{
		Type:     FrameMedia,
		Data:     media.Data,
		MimeType: media.MimeType,
		Filename: media.Filename,
		Caption:  media.Caption,
	})
}

func (s *Server) broadcast(to string, frame Frame) error {
	userID := s.userKey(to)

	s.mu.RLock()
	targets := make([]*Client, 0, len(s.clients[userID]))
	for c := range s.clients[userID] {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNotConnected, to)
	}

	var errs []error
	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", c.id, err))
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		s.clients[c.userID] = set
	}
	set[c] = struct{}{}

	s.logger.Debug("client connected",
		slog.String("client_id", c.id),
		slog.String("user_id", c.userID),
	)
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(s.clients, c.userID)
	}

	s.logger.Debug("client disconnected",
		slog.String("client_id", c.id),
		slog.String("user_id", c.userID),
	)
}

func (s *Server) closeAll() {
	s.mu.RLock()
	var all []*Client
	for _, set := range s.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	users := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "users": users})
}

func (s *Server) handleWS(dispatch Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := s.userKey(r.URL.Query().Get("user"))
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrMissingUser.Error()})
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		c := newClient(s, conn, userID)
		s.register(c)

		go c.writePump()
		go c.readPump(dispatch)
	}
}

func (s *Server) handleWebhook(dispatch Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageSize)

		var in Inbound
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		switch {
		case strings.TrimSpace(in.From) == "":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrMissingUser.Error()})
			return
		case strings.TrimSpace(in.Body) == "":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrMissingBody.Error()})
			return
		}

		if err := dispatch(r.Context(), in.From, in.Body); err != nil {
			s.logger.Warn("dispatch failed",
				slog.String("from", in.From),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "message not accepted"})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

// userKey normalizes an address the same way sessions are keyed: only the
// configured chat domain is stripped.
func (s *Server) userKey(address string) string {
	return notify.UserID(address, s.domain)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
