// Package observability serves the Prometheus metrics and optional pprof
// endpoints on their own listeners, separate from the telemetry endpoint.
package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hblackburnRedev/SmartMeter/config"
	"github.com/hblackburnRedev/SmartMeter/logging"
)

const shutdownTimeout = 5 * time.Second

// Server provides observability endpoints (metrics and pprof).
type Server struct {
	logger        logging.Logger
	metricsCfg    config.MetricsConfig
	pprofCfg      config.PprofConfig
	metricsServer *http.Server
	pprofServer   *http.Server
	mu            sync.Mutex
	running       bool
}

// NewServer creates a new observability server.
func NewServer(logger logging.Logger, metricsCfg config.MetricsConfig, pprofCfg config.PprofConfig) *Server {
	return &Server{
		logger:     logging.ForComponent(logger, logging.ComponentObservability),
		metricsCfg: metricsCfg,
		pprofCfg:   pprofCfg,
	}
}

// Start begins serving the enabled endpoints.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		s.metricsServer = &http.Server{
			Addr:              s.metricsCfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go s.serve(s.metricsServer, "metrics")
		s.logger.Info().Str(logging.FieldListenAddr, s.metricsCfg.Addr).Msg("metrics server started")
	}

	if s.pprofCfg.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		s.pprofServer = &http.Server{
			Addr:              s.pprofCfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go s.serve(s.pprofServer, "pprof")
		s.logger.Info().Str(logging.FieldListenAddr, s.pprofCfg.Addr).Msg("pprof server started")
	}

	s.running = true
	return nil
}

func (s *Server) serve(srv *http.Server, name string) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Str("server", name).Msg("observability server error")
	}
}

// Stop shuts down the observability endpoints.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	for _, srv := range []*http.Server{s.metricsServer, s.pprofServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
