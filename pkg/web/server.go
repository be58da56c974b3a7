package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// Server is the terminal's local HTTP surface
type Server struct {
	config config.WebConfig
	logger *logger.Logger
	server *http.Server
	hub    *WebSocketHub
	audio  *AudioHub
	api    *API
	addr   string
	ready  chan struct{}
	mu     sync.RWMutex
}

// Options are the server's collaborators. Radio is required; Calls and
// Alerts are nil when persistence is disabled. Hubs are created when Hub
// or Audio is nil.
type Options struct {
	Radio  Controller
	Calls  *database.CallRepository
	Alerts *database.AlertRepository
	Hub    *WebSocketHub
	Audio  *AudioHub
}

// NewServer creates a new web server instance
func NewServer(cfg config.WebConfig, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("web")
	hub := opts.Hub
	if hub == nil {
		hub = NewWebSocketHub(log)
	}
	audio := opts.Audio
	if audio == nil {
		audio = NewAudioHub(log)
	}
	if opts.Radio != nil {
		hub.SetSnapshotSource(opts.Radio.Snapshot)
		audio.SetCapture(opts.Radio.CaptureAudio)
	}
	return &Server{
		config: cfg,
		logger: log,
		hub:    hub,
		audio:  audio,
		api:    NewAPI(opts.Radio, opts.Calls, opts.Alerts, log),
		ready:  make(chan struct{}),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("/api/status", s.api.HandleStatus)
	api.HandleFunc("/api/calls", s.api.HandleCalls)
	api.HandleFunc("/api/alerts", s.api.HandleAlerts)
	api.HandleFunc("/api/intent", s.api.HandleIntent)
	api.Handle("/ws", s.hub.Handler())
	api.Handle("/audio", s.audio.Handler())

	protected := s.basicAuth(api)
	mux.Handle("/api/", protected)
	mux.Handle("/ws", protected)
	mux.Handle("/audio", protected)
	return mux
}

// basicAuth guards everything but /health when auth is required
func (s *Server) basicAuth(next http.Handler) http.Handler {
	if !s.config.AuthRequired {
		return next
	}
	user := []byte(s.config.Username)
	pass := []byte(s.config.Password)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), user) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pass) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="wlink-terminal"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	go s.hub.Run(ctx)

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Starting web server",
		logger.String("address", s.addr),
		logger.Bool("auth", s.config.AuthRequired))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		s.audio.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Ready is closed once the server is listening
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

// GetAudio returns the PCM hub
func (s *Server) GetAudio() *AudioHub {
	return s.audio
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "wlink-terminal",
		"version": GetVersionInfo().Version,
		"time":    time.Now().Unix(),
	}); err != nil {
		s.logger.Warn("Failed to encode health response", logger.Error(err))
	}
}
