// Worker purges expired device codes. By default it loops on
// DEVICE_CODE_CLEANUP_INTERVAL and serves Prometheus metrics on HTTP_ADDR;
// with -once it runs a single cron-style pass and exits.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/config"
	"openhands-enterprise/backend/internal/db"
	"openhands-enterprise/backend/internal/devicecode"
	devicecoderepo "openhands-enterprise/backend/internal/devicecode/repository"
	"openhands-enterprise/backend/internal/observability/logger"
	"openhands-enterprise/backend/internal/observability/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single cleanup pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.DatabaseURL == "" {
		zlog.Fatal("DATABASE_URL is required")
	}

	gdb, err := db.OpenGorm(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("open gorm", zap.Error(err))
	}
	defer func() {
		if conn, err := gdb.DB(); err == nil {
			_ = conn.Close()
		}
	}()

	node, err := snowflake.NewNode(1)
	if err != nil {
		zlog.Fatal("snowflake node", zap.Error(err))
	}

	stats := metrics.SchedulerWithConfig(metrics.Config{
		ServiceName: "openhands-enterprise-worker",
		Environment: cfg.Env,
	})

	repo := devicecoderepo.NewPostgresRepository(gdb, node)
	svc := devicecode.NewService(repo, cfg.DeviceCodeTTLDuration(), zlog)
	cleaner := devicecode.NewCleaner(svc,
		cfg.DeviceCodeCleanupIntervalDuration(), cfg.DeviceCodeCleanupBatchSize, stats, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		deleted, err := cleaner.RunOnce(ctx)
		if err != nil {
			zlog.Fatal("cleanup pass failed", zap.Error(err))
		}
		zlog.Info("cleanup completed", zap.Int64("deleted", deleted))
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("worker metrics listening", zap.String("addr", cfg.HTTPAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("metrics listener failed", zap.Error(err))
		}
	}()

	cleaner.RunForever(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	zlog.Info("worker stopped")
}
