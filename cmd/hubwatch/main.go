package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hubwatch/internal/analytics"
	"hubwatch/internal/config"
	"hubwatch/internal/hub"
	"hubwatch/internal/metrics"
	"hubwatch/internal/monitor"
	"hubwatch/internal/sampler"
	"hubwatch/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	engine, err := monitor.NewEngine(cfg.Monitor, store)
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	hubClient := hub.NewClient(cfg.Hub.APIURL, cfg.Hub.APIToken)
	inactiveAfter := time.Duration(cfg.Monitor.InactiveAfterMinutes) * time.Minute
	smp := sampler.New(hubClient, engine, inactiveAfter, logger)
	reporter := analytics.New(engine)

	logger.Info("sampler configured",
		zap.Int("interval_seconds", cfg.Monitor.SampleIntervalSeconds),
		zap.Int("retention_days", cfg.Monitor.RetentionDays),
		zap.Int("half_life_hours", cfg.Monitor.HalfLifeHours),
		zap.Int("inactive_after_minutes", cfg.Monitor.InactiveAfterMinutes),
		zap.Int("target_hours_per_day", cfg.Monitor.TargetHoursPerDay),
	)

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	go runLoop(loopCtx, cfg, smp, engine, reporter, logger)

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	cancelLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
}

func runLoop(ctx context.Context, cfg config.Config, smp *sampler.Sampler, engine *monitor.Engine, reporter *analytics.Service, logger *zap.Logger) {
	interval := time.Duration(cfg.Monitor.SampleIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First pass right away so fresh deployments have data before the
	// first full interval elapses.
	runTick(ctx, smp, engine, reporter, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runTick(ctx, smp, engine, reporter, logger)
		}
	}
}

func runTick(ctx context.Context, smp *sampler.Sampler, engine *monitor.Engine, reporter *analytics.Service, logger *zap.Logger) {
	result, err := smp.Tick(ctx)
	if err != nil {
		logger.Error("tick failed", zap.Error(err))
		return
	}
	metrics.RecordTick()

	now := time.Now().UTC()
	pruned, err := engine.Prune(ctx, now)
	if err != nil {
		logger.Error("prune failed", zap.Error(err))
	} else if pruned > 0 {
		metrics.RecordPruned(pruned)
	}

	report, err := reporter.Report(ctx, now)
	if err != nil {
		logger.Error("report failed", zap.Error(err))
		return
	}
	for level, count := range report.ByLevel {
		metrics.SetUsersAtLevel(level, count)
	}

	logger.Info("tick complete",
		zap.Int("sampled", result.Sampled),
		zap.Int("active", result.Active),
		zap.Int("inactive", result.Inactive),
		zap.Int("offline", result.Offline),
		zap.Int("failed", result.Failed),
		zap.Int64("pruned", pruned),
		zap.Int("total_users", report.TotalUsers),
		zap.Int("total_samples", report.TotalSamples),
		zap.Any("levels", report.ByLevel),
	)
}
