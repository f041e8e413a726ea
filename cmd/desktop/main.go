// Package main provides the local sync server for desktop platforms.
// Desktop clients communicate via REST/WebSocket on localhost:8090.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kimhsiao/memonexus/contentsync/cmd/desktop/handlers"
	"github.com/kimhsiao/memonexus/contentsync/internal/config"
	"github.com/kimhsiao/memonexus/contentsync/internal/db"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/metrics"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/queue"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/scheduler"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONTENTSYNC_CONFIG"), "path to a YAML/JSON/TOML config file")
	flag.Parse()

	logging.Init(os.Stdout, logging.LevelInfo)
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Failed to load configuration", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg)
	if err != nil {
		logging.Error("Desktop server stopped with error", err)
	}
	_ = logging.Get().Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app holds the wired components of the desktop server.
type app struct {
	database  *db.DB
	service   *syncpkg.Service
	scheduler *scheduler.Scheduler
	hub       *WSHub
	registry  *prometheus.Registry
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Scheduler.Enabled {
		a.scheduler.Start(ctx)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(a.service, a.scheduler, a.hub, a.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Desktop sync server starting", map[string]interface{}{
			"addr":     cfg.Server.Addr,
			"bucket":   cfg.Transport.Bucket,
			"provider": cfg.Transport.Provider,
			"pending":  a.service.PendingCount(),
		})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newApp wires storage, transport, service, metrics and scheduler from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}

	var q *queue.OperationQueue
	if cfg.Sync.Durable {
		database, err := db.OpenMigrated(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		a.database = database

		q, err = queue.NewDurableQueue(ctx, cfg.Sync.MaxQueueSize, db.NewRepository(database.DB))
		if err != nil {
			database.Close()
			return nil, err
		}
	} else {
		q = queue.NewOperationQueue(cfg.Sync.MaxQueueSize)
	}

	s3, err := transport.NewS3Transport(ctx, cfg.S3Config())
	if err != nil {
		a.close()
		return nil, err
	}
	t := transport.NewThrottled(s3, cfg.Transport.RatePerSecond, cfg.Transport.Burst)

	a.service = syncpkg.NewService(q, t, cfg.ServiceConfig())

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.service.SetMetrics(metrics.MustRegister(a.registry))

	a.hub = NewWSHub()
	a.service.SetEventHandler(a.hub)

	a.scheduler = scheduler.NewScheduler(a.service, cfg.SchedulerConfig())
	return a, nil
}

func (a *app) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			logging.Error("Failed to close database", err)
		}
	}
}

// newRouter registers the HTTP routes. sched may be nil.
func newRouter(service syncpkg.ContentSyncService, sched handlers.SyncScheduler, hub *WSHub, gatherer prometheus.Gatherer) http.Handler {
	syncHandler := handlers.NewSyncHandler(service, sched)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"contentsync-desktop"}`))
	})

	mux.HandleFunc("GET /api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("POST /api/sync/now", syncHandler.TriggerSync)
	mux.HandleFunc("POST /api/sync/publish", syncHandler.Publish)
	mux.HandleFunc("POST /api/sync/unpublish", syncHandler.Unpublish)
	mux.HandleFunc("GET /api/sync/pending/{content_id}", syncHandler.GetPending)

	if hub != nil {
		mux.HandleFunc("GET /ws", HandleWebSocket(hub))
	}
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}
