// Package server exposes encoding and reverse search over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/LiEnby/eCDP-Serial-Code/internal/config"
	"github.com/LiEnby/eCDP-Serial-Code/internal/metrics"
)

var tracer = otel.Tracer("ecdp.server")

const shutdownTimeout = 5 * time.Second

// Server is the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	workers int
	logger  *zap.Logger
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// New builds the router. Collectors are registered on reg, which is also
// what /metrics exposes.
func New(cfg config.ServerConfig, workers int, logger *zap.Logger, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		workers: workers,
		logger:  logger,
		metrics: metrics.New(reg),
		engine:  gin.New(),
	}
	s.engine.Use(requestID(), accessLog(logger), recovery(logger))

	s.engine.GET("/health", handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/master", handleMaster)
		v1.POST("/encode", s.handleEncode)
		v1.POST("/reverse", s.handleReverse)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
