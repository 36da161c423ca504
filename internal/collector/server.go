package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
)

// HealthService is the gRPC health service name of the collector.
const HealthService = "adsb.collector"

// CycleRunner runs one polling cycle.
type CycleRunner interface {
	Run(ctx context.Context) Report
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger
	Cycle  CycleRunner
	// API is mounted under /api when set.
	API http.Handler
	// Metrics is served on /metrics; defaults to the global registry.
	Metrics http.Handler

	// DB is closed on shutdown when set.
	DB *gorm.DB
	// Closers are closed on shutdown in order, e.g. the alert event publisher.
	Closers []io.Closer

	Interval time.Duration
	// HTTPAddr and GRPCAddr are listen addresses; empty disables the server.
	HTTPAddr string
	GRPCAddr string
}

// Server runs cycles on a fixed schedule and serves health, metrics and the
// report API.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	mu         sync.RWMutex
	lastReport *Report
	httpAddr   net.Addr
	grpcAddr   net.Addr
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Cycle == nil {
		return nil, errors.New("cycle cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be greater than 0")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
		health: health.NewServer(),
	}, nil
}

// Handler returns the HTTP routes of the collector.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	metricsHandler := s.config.Metrics
	if metricsHandler == nil {
		metricsHandler = metrics.Handler()
	}
	mux.Handle("GET /metrics", metricsHandler)

	if s.config.API != nil {
		mux.Handle("/api/", http.StripPrefix("/api", s.config.API))
	}
	return mux
}

// Run starts the servers and the cycle loop and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting collector", "interval", s.config.Interval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 2)

	if s.config.HTTPAddr != "" {
		lis, err := net.Listen("tcp", s.config.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err)
		}
		s.setAddr(&s.httpAddr, lis.Addr())
		s.httpServer = &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		s.logger.Info("starting HTTP server", "address", lis.Addr().String())
		go func() {
			if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	if s.config.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.config.GRPCAddr)
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("failed to listen on %s: %w", s.config.GRPCAddr, err)
		}
		s.setAddr(&s.grpcAddr, lis.Addr())
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
		s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

		s.logger.Info("starting gRPC server", "address", lis.Addr().String())
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				serveErr <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case sig := <-sigChan:
			s.logger.Info("received shutdown signal", "signal", sig.String())
			cancel()
			return s.Shutdown()
		case <-ctx.Done():
			s.logger.Info("context canceled")
			return s.Shutdown()
		case err := <-serveErr:
			s.logger.Error("server error", "error", err)
			cancel()
			return errors.Join(err, s.Shutdown())
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Server) runCycle(ctx context.Context) {
	rep := s.config.Cycle.Run(ctx)

	s.mu.Lock()
	s.lastReport = &rep
	s.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy(rep) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.health.SetServingStatus("", status)
}

// LastReport returns the report of the latest cycle, or nil before the first.
func (s *Server) LastReport() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// HTTPAddr returns the bound HTTP address once Run has started listening.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address once Run has started listening.
func (s *Server) GRPCAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grpcAddr
}

func (s *Server) setAddr(dst *net.Addr, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*dst = addr
}

// healthy reports whether a cycle obtained a snapshot.
func healthy(rep Report) bool {
	return rep.Status == metrics.StatusSuccess || rep.Status == metrics.StatusPartial
}

type healthResponse struct {
	LastCycle  *time.Time `json:"last_cycle,omitempty"`
	Status     string     `json:"status"`
	LastStatus string     `json:"last_status,omitempty"`
	Aircraft   int        `json:"aircraft"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "starting"}
	code := http.StatusOK

	if rep := s.LastReport(); rep != nil {
		started := rep.Started.UTC()
		resp.LastCycle = &started
		resp.LastStatus = rep.Status
		resp.Aircraft = rep.Aircraft
		resp.Status = "ok"
		if !healthy(*rep) {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown gracefully stops the servers and releases resources.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down collector")

	var errs []error

	s.health.Shutdown()

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
	}

	for _, c := range s.config.Closers {
		if err := c.Close(); err != nil {
			s.logger.Error("failed to close resource", "error", err)
			errs = append(errs, err)
		}
	}

	if s.config.DB != nil {
		if err := store.CloseDB(s.config.DB, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("collector shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("collector shutdown completed successfully")
	return nil
}
