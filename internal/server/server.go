package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"conversion-relay/api/router"
	"conversion-relay/config"
	"conversion-relay/internal/upstream"
	"conversion-relay/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *logger.Logger
}

func NewServer(cfg *config.Config, logger *logger.Logger) *Server {
	forwarder := upstream.NewClient(cfg.Upstream.Endpoint, cfg.Upstream.AccessToken, logger.Desugar())
	if !forwarder.Configured() {
		// Still serve: the handler answers every request with the
		// not-configured envelope rather than refusing to start.
		logger.Warn("Conversion API access token not configured")
	}

	r := router.Setup(logger, forwarder, cfg.Catalog())

	metricsAddr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: r,
		},
		metricsServer: metricsServer,
		logger:        logger,
	}
}

func (s *Server) Start() error {
	// Start metrics server in a goroutine
	go func() {
		s.logger.Info("Metrics server starting on " + s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("metrics server error: %v", err)
		}
	}()

	s.logger.Info("Relay server starting on " + s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() error {
	s.logger.Info("Server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("metrics server shutdown failed: %v", err)
	}
	return s.httpServer.Shutdown(ctx)
}
