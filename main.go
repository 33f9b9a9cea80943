package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdimeji/mmsgate/internal/carrier"
	"github.com/tdimeji/mmsgate/internal/config"
	"github.com/tdimeji/mmsgate/internal/httpapi"
	"github.com/tdimeji/mmsgate/internal/logging"
	"github.com/tdimeji/mmsgate/internal/mms"
	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/internal/network"
	"github.com/tdimeji/mmsgate/internal/persist"
	"github.com/tdimeji/mmsgate/internal/request"
	"github.com/tdimeji/mmsgate/internal/scheduler"
	"github.com/tdimeji/mmsgate/internal/store"
	"github.com/tdimeji/mmsgate/internal/telephony"
	"github.com/tdimeji/mmsgate/internal/transport"
	"github.com/tdimeji/mmsgate/internal/workers"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	baseHandler := slog.NewJSONHandler(os.Stdout, opts)
	contextHandler := logging.NewContextHandler(baseHandler)
	slog.SetDefault(slog.New(contextHandler))
	slog.Info("Logging initialized", "level", logLevel.String())

	// Outcome persistence is optional: without a database the gateway
	// still runs, logging outcomes instead.
	var persister persist.Persister = persist.NewLogPersister()
	var dbpool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbpool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v\n", err)
		}
		defer dbpool.Close()
		if err := dbpool.Ping(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		slog.Info("Database connection pool established")
		persister = persist.NewPostgresPersister(dbpool)
	}

	// --- Carrier configuration ---
	configCache := mmsconfig.NewCache()
	configSource := mmsconfig.NewFileSource(cfg.CarrierConfigPath, configCache)
	if err := configSource.Start(ctx); err != nil {
		log.Fatalf("Failed to load carrier configurations: %v", err)
	}
	defer configSource.Stop()

	// --- Transfer machinery ---
	contentStore, err := store.NewDirStore(cfg.ContentDir)
	if err != nil {
		log.Fatalf("Failed to open content store: %v", err)
	}

	leases := network.NewLeaseManager(&network.HostPlatform{},
		cfg.Network.PlatformRequestTimeout, cfg.Network.AcquireExtraTimeout)

	var breaker *transport.BreakerSet
	if cfg.Transport.BreakerEnabled {
		breaker = transport.NewBreakerSet(transport.BreakerConfig{
			FailureThreshold: cfg.Transport.BreakerFailureThreshold,
			SuccessThreshold: cfg.Transport.BreakerSuccessThreshold,
			Timeout:          cfg.Transport.BreakerTimeout,
		})
	}
	var throttle *transport.Throttle
	if cfg.Transport.ThrottleEnabled {
		throttle = transport.NewThrottle(cfg.Transport.ThrottleRate, cfg.Transport.ThrottleBurst)
	}

	client := transport.NewClient(transport.Options{
		IPv4WaitAttempts: cfg.Transport.IPv4WaitAttempts,
		IPv4WaitDelay:    cfg.Transport.IPv4WaitDelay,
		Telephony: &telephony.StaticInfo{
			Lines: cfg.Telephony.Line1Numbers,
			NAIs:  cfg.Telephony.NAIs,
		},
		Breaker: breaker,
	})

	env := &request.Env{
		Configs:      configCache,
		Leases:       leases,
		Transport:    client,
		Store:        contentStore,
		Persister:    persister,
		Throttle:     throttle,
		Retry:        mmserror.RetryPolicy{Permanent4xx: cfg.Transport.RetryPermanent4xx},
		MaxAttempts:  cfg.Scheduler.MaxAttempts,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
	}

	// No carrier app binder ships with the gateway; the delegate reports
	// not-available and every request takes the builtin path.
	delegate := carrier.NewDelegate(nil, cfg.Delegate.Timeout)

	sched := scheduler.New(env, delegate, scheduler.Config{
		SendWorkers:     cfg.Scheduler.SendWorkers,
		DownloadWorkers: cfg.Scheduler.DownloadWorkers,
	})
	sched.Start(ctx)

	// --- API frontend ---
	service := mms.NewService(configCache, sched)
	statuses := httpapi.NewStatusStore()
	server := httpapi.NewServer(cfg.API, httpapi.NewHandler(service, statuses))

	maintenance := workers.NewManager(dbpool, statuses, workers.Config{
		SweepInterval:   cfg.Maintenance.SweepInterval,
		StatusRetention: cfg.Maintenance.StatusRetention,
		RecordRetention: cfg.Maintenance.RecordRetention,
	})
	maintenance.Start(ctx)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Printf("API server error: %v", err)
			cancel()
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Println("Shutdown signal received, shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	server.Stop(shutdownCtx)
	sched.Stop()

	log.Println("Gateway gracefully stopped")
}
