// Command fitfi-data serves the data-access core over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitfi/service_layer/internal/cache"
	"github.com/fitfi/service_layer/internal/challenge"
	"github.com/fitfi/service_layer/internal/config"
	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/httpapi"
	"github.com/fitfi/service_layer/internal/invalidate"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/internal/resilience"
	"github.com/fitfi/service_layer/internal/snapshot"
	"github.com/fitfi/service_layer/internal/warmup"
	"github.com/fitfi/service_layer/supabase/client"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log.Service, cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("service stopped")
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	snap := snapshot.New(cfg.SnapshotPaths(), cfg.Snapshot.Root, logger)
	if report := snap.Validate(ctx); !report.Valid {
		logger.WithComponent("snapshot").WithField("errors", report.Errors).Warn("Snapshot files are incomplete")
	}

	opts := []fetch.Option{fetch.WithDedupe(cfg.Cache.Dedupe)}
	var (
		adapter  *remote.Adapter
		supabase *client.Client
	)
	if cfg.Remote.Enabled {
		adapter, supabase, err = openRemote(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Warn("Remote store unavailable, serving snapshots")
			opts = append(opts, fetch.WithRemoteUnavailable(err))
		} else {
			defer adapter.Close()
			opts = append(opts, fetch.WithRemote(adapter))
		}
	}

	reads := fetch.New(store, snap, logger, opts...)

	var writer challenge.Writer = challenge.NewMemoryWriter(challenge.DefaultSubmissionLimit)
	if adapter != nil {
		writer = adapter
	}
	challenges := challenge.NewService(reads, writer, logger)

	if cfg.Cache.WarmSchedule != "" {
		w := warmup.New(reads, 0, logger)
		w.Run(ctx)
		if err := w.Start(ctx, cfg.Cache.WarmSchedule); err != nil {
			return err
		}
		defer w.Stop()
	}

	if cfg.Cache.Realtime {
		if closeRealtime, err := startRealtime(ctx, cfg, supabase, reads, logger); err != nil {
			logger.WithError(err).Warn("Realtime invalidation disabled")
		} else {
			defer closeRealtime()
		}
	}

	limiter := httpapi.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, logger)
	limiter.StartCleanup(5*time.Minute, ctx.Done())

	deps := httpapi.Deps{
		Fetch:      reads,
		Challenges: challenges,
		Snapshots:  snap,
		Limiter:    limiter,
		Logger:     logger,

		CORSOrigins: cfg.HTTP.CORSOrigins,
	}
	if adapter != nil {
		deps.Health = adapter
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpapi.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).WithField("remote", reads.RemoteEnabled()).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	if cfg.Cache.Backend == config.BackendRedis {
		rs, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis cache: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	return cache.NewMemoryStore(cfg.Cache.TTL), func() {}, nil
}

// openRemote builds the remote adapter for the configured driver. The
// Supabase client is returned as well when that driver is used.
func openRemote(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*remote.Adapter, *client.Client, error) {
	if !cfg.RemoteConfigured() {
		return nil, nil, fmt.Errorf("%w: missing settings for driver %s", remote.ErrUnavailable, cfg.Remote.Driver)
	}

	policy := cfg.ResiliencePolicy()
	if bc := cfg.BreakerConfig(); bc != nil {
		entry := logger.WithComponent("breaker")
		bc.OnStateChange = func(from, to resilience.CircuitState) {
			entry.WithField("from", from.String()).WithField("to", to.String()).Warn("Circuit state changed")
		}
		policy.Breaker = resilience.NewCircuitBreaker(*bc)
	}

	var (
		backend remote.Backend
		sb      *client.Client
	)
	switch cfg.Remote.Driver {
	case config.DriverPostgres:
		pg, err := remote.OpenPostgres(ctx, cfg.Remote.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Remote.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, nil, err
			}
		}
		backend = pg
	default:
		c, err := client.New(client.Config{URL: cfg.Remote.SupabaseURL, APIKey: cfg.Remote.SupabaseKey})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
		}
		backend = remote.NewSupabaseBackend(c)
		sb = c
	}

	return remote.NewAdapter(backend, cfg.RemoteTables(), policy, logger), sb, nil
}

func startRealtime(ctx context.Context, cfg *config.Config, sb *client.Client, target invalidate.Target, logger *logging.Logger) (func(), error) {
	if sb == nil {
		return nil, errors.New("realtime invalidation requires the supabase driver")
	}
	rt, err := client.NewRealtimeClientFor(sb)
	if err != nil {
		return nil, err
	}
	if err := rt.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect realtime: %w", err)
	}

	sub := invalidate.New(rt, target, invalidate.DefaultRoutes(cfg.RemoteTables()), logger)
	if err := sub.Start(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return func() { _ = rt.Close() }, nil
}
