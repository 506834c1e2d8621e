package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/okian/pitchside/internal/adapters/http/api"
	"github.com/okian/pitchside/internal/adapters/http/swagger"
	"github.com/okian/pitchside/internal/adapters/matrix"
	"github.com/okian/pitchside/internal/adapters/mq/dedupe"
	"github.com/okian/pitchside/internal/adapters/mq/rabbitmq"
	"github.com/okian/pitchside/internal/adapters/repository"
	"github.com/okian/pitchside/internal/adapters/snapshot"
	app "github.com/okian/pitchside/internal/app"
	"github.com/okian/pitchside/internal/config"
	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	deps, err := wire(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to wire dependencies", logger.Error(err))
		return
	}
	defer deps.close()

	svc := deps.svc
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	var background sync.WaitGroup
	if deps.consumer != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := deps.consumer.Run(ctx); err != nil {
				loggerInstance.Error(ctx, "location consumer stopped", logger.Error(err))
			}
		}()
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// API reference under /api-docs and /openapi.yaml
	swagger.Register(ctx, mux)

	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	background.Wait()

	loggerInstance.Info(ctx, "server stopped")
}

// dependencies holds everything main builds from configuration.
type dependencies struct {
	svc      *app.Service
	consumer *rabbitmq.Consumer
	closers  []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// wire builds the service and its optional backends. Every external system is
// optional: an empty address or credential leaves the in-process default.
func wire(ctx context.Context, cfg *config.Config, log logger.Logger) (*dependencies, error) {
	mode, err := distance.ParseMode(cfg.TravelMode)
	if err != nil {
		return nil, err
	}

	deps := &dependencies{}
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithMatrixTimeout(cfg.MatrixTimeout()),
		app.WithShardCount(cfg.ShardCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithCacheTTL(cfg.CacheTTL()),
		app.WithMovementThreshold(cfg.MovementThresholdKm),
		app.WithMode(mode),
		app.WithRetryPolicy(distance.RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: cfg.RetryBackoff()}),
		app.WithFallbackConcurrency(cfg.FallbackConcurrency),
		app.WithDistanceTieBreak(cfg.DistanceTieBreak),
		app.WithSessionIdleTimeout(cfg.SessionIdleTimeout()),
	}

	if cfg.MatrixAPIKey != "" {
		client, err := matrix.NewClient(cfg.MatrixAPIKey,
			matrix.WithBaseURL(cfg.MatrixBaseURL),
			matrix.WithLogger(log.Named("matrix")),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithMatrixService(client))
	}

	if cfg.PostgresDSN != "" {
		pool, err := repository.NewPool(ctx, cfg.PostgresDSN, repository.WithPoolLogger(log.Named("postgres")))
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		store := repository.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			deps.close()
			return nil, err
		}
		opts = append(opts, app.WithEventSource(store), app.WithSkillSource(store))
	}

	if cfg.RedisAddr != "" {
		client, err := snapshot.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		opts = append(opts, app.WithSnapshotStore(snapshot.NewRedisStore(client, snapshot.WithLogger(log.Named("snapshot")))))
	}

	deps.svc = app.New(opts...)

	if cfg.AMQPURL != "" {
		deps.consumer = rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, deps.svc.Submit,
			rabbitmq.WithPrefetch(cfg.AMQPPrefetch),
			rabbitmq.WithDeduper(dedupe.NewInMemory()),
			rabbitmq.WithLogger(log.Named("rabbitmq")),
		)
	}
	return deps, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}

	if sessions, ok := stats["activeSessions"].(int); ok {
		metrics.UpdateActiveSessions(sessions)
	}
}
