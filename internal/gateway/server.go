package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hacastro22/watibot3-sub002/internal/config"
	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	httpapi "github.com/hacastro22/watibot3-sub002/internal/http"
)

// Server is the HTTP front of the service: provider webhooks, health,
// metrics and the buffer inspection API.
type Server struct {
	cfg       *config.Config
	version   string
	debouncer *debounce.Debouncer

	webhookHandler *httpapi.WebhookHandler
	bufferHandler  *httpapi.BufferHandler
	metricsReg     *prometheus.Registry

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, version string, d *debounce.Debouncer) *Server {
	return &Server{cfg: cfg, version: version, debouncer: d}
}

// SetWebhookHandler sets the provider webhook handler.
func (s *Server) SetWebhookHandler(h *httpapi.WebhookHandler) { s.webhookHandler = h }

// SetBufferHandler sets the buffer inspection handler.
func (s *Server) SetBufferHandler(h *httpapi.BufferHandler) { s.bufferHandler = h }

// SetMetricsRegistry enables /metrics for the given registry.
func (s *Server) SetMetricsRegistry(reg *prometheus.Registry) { s.metricsReg = reg }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.metricsReg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{}))
	}
	if s.webhookHandler != nil {
		s.webhookHandler.RegisterRoutes(mux)
	}
	if s.bufferHandler != nil {
		s.bufferHandler.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	<-errCh
	return nil
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.debouncer != nil {
		active = s.debouncer.Registry().Len()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","version":%q,"active_timers":%d}`, s.version, active)
}
