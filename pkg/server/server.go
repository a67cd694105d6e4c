package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/ethpandaops/execution-simulator/pkg/api"
	"github.com/ethpandaops/execution-simulator/pkg/cache"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/ethpandaops/execution-simulator/pkg/observability"
	"github.com/ethpandaops/execution-simulator/pkg/redis"
	"github.com/ethpandaops/execution-simulator/pkg/simulator"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	log       logrus.FieldLogger
	config    *Config
	namespace string

	redis  *r.Client
	pool   *ethereum.Pool
	engine *simulator.Engine
	memory *MemoryStatsCollector

	apiServer    *http.Server
	pprofServer  *http.Server
	healthServer *http.Server
}

func NewServer(log logrus.FieldLogger, namespace string, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool, err := ethereum.NewPool(log.WithField("component", "ethereum"), namespace, &config.Ethereum)
	if err != nil {
		return nil, fmt.Errorf("failed to create ethereum pool: %w", err)
	}

	s := &Server{
		config:    config,
		log:       log,
		namespace: namespace,
		pool:      pool,
		memory:    NewMemoryStatsCollector(log, config.MemoryMonitor),
	}

	if config.Redis != nil {
		redisClient, err := redis.New(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}

		s.redis = redisClient
		pool.SetCache(cache.New(log, redisClient, config.Redis.Prefix, config.Redis.TTL))
	}

	s.engine = simulator.NewEngine(log, &config.Simulator, pool)

	mux := http.NewServeMux()
	api.NewHandler(log, s.engine, pool).RegisterRoutes(mux)

	s.apiServer = &http.Server{
		Addr:              config.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		// A run may take up to the time budget plus provider round trips.
		WriteTimeout: config.Simulator.TimeBudget + 30*time.Second,
	}

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Start metrics server
	g.Go(func() error {
		return observability.StartMetricsServer(ctx, s.config.MetricsAddr)
	})

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		s.pprofServer = &http.Server{
			Addr:              *s.config.PProfAddr,
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

			return ignoreClosed(s.pprofServer.ListenAndServe())
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		s.healthServer = &http.Server{
			Addr:              *s.config.HealthCheckAddr,
			Handler:           s.healthHandler(),
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

			return ignoreClosed(s.healthServer.ListenAndServe())
		})
	}

	// Start ethereum pool
	g.Go(func() error {
		s.pool.Start(ctx)

		return nil
	})

	g.Go(func() error {
		s.memory.Run(ctx)

		return nil
	})

	g.Go(func() error {
		s.log.WithField("addr", s.config.APIAddr).Info("Starting API server")

		return ignoreClosed(s.apiServer.ListenAndServe())
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return s.stop()
	})

	return g.Wait()
}

func (s *Server) stop() error {
	// The group context is already cancelled here.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if err := s.apiServer.Shutdown(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to shutdown api server")
	}

	if err := s.pool.Stop(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop ethereum pool")
	}

	// Close Redis connection
	if s.redis != nil {
		s.log.Info("Closing Redis connection...")

		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Error("failed to close redis")
		}
	}

	// Shutdown HTTP servers
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Simulator stopped gracefully")

	return nil
}

// healthHandler reports ready once at least one provider node is healthy.
func (s *Server) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !s.pool.HasHealthyExecutionNodes() {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

func ignoreClosed(err error) error {
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
