// Command sniper is the process entrypoint: it wires the Store, ISP Proxy
// Pool, Scheduler, Scanner, Coordinator, Passive Monitor, Account
// Reservation Prefetcher and event Hub/Bridge together and serves the
// operator-facing HTTP surface until SIGINT/SIGTERM (spec §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/config"
	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/httpapi"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/passive"
	"github.com/reservesniper/core/internal/prefetch"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/scanner"
	"github.com/reservesniper/core/internal/scheduler"
	"github.com/reservesniper/core/internal/store"
)

// defaultBlackoutWindow keeps the Store's periodic sync from starting
// within 60s before a scheduled release (spec §4.B). The Passive Monitor
// uses its own, wider blackout from config.Passive.BlackoutMinutes.
const defaultBlackoutWindow = 60 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	var redisClient *redis.Client
	if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
		redisClient = redis.NewClient(opt)
	} else {
		log.Warn("failed to parse redis url, running without the redis reuse-spacing mirror", "error", err)
	}

	natsConn, err := events.Connect(cfg.NATS.URL)
	var publisher *events.Publisher
	if err != nil {
		log.Warn("failed to connect to NATS, events will not leave the process", "error", err)
		publisher = events.NewNullPublisher(log)
	} else {
		publisher = events.NewPublisher(natsConn, log)
	}

	hub := events.NewHub()
	bridge := events.NewBridge(hub, publisher, log)
	go bridge.Run()

	st := store.New(db, 5*time.Minute, log)

	ctx, cancel := context.WithCancel(context.Background())
	if err := st.Bootstrap(ctx); err != nil {
		log.Fatal("failed to bootstrap store", "error", err)
	}

	poolCfg := proxypool.Config{
		CoolDown:       cfg.ProxyPool.CoolDown,
		MinReuseDelay:  cfg.ProxyPool.MinReuseDelay,
		AcquireTimeout: cfg.ProxyPool.AcquireTimeout,
		PollInterval:   cfg.ProxyPool.PollInterval,
	}
	pool := proxypool.New(poolCfg, st, redisClient, log)
	pool.RefreshFromStore()
	st.AddPostSyncHook(func() { pool.RefreshFromStore() })

	client := apiclient.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout, log)
	co := coordinator.New(st, pool, coordinator.WrapClient(client), hub, cfg.DryRun, log)
	pf := prefetch.New(client, log)

	scanStats := httpapi.NewScanStatsRecorder()

	onWindowStart := func(ctx context.Context, w scheduler.Window) {
		log.Info("release window opening", "targetDate", w.TargetDate, "restaurants", len(w.Restaurants))
		hub.Publish(events.KindWindowStart, w.TargetDate)

		co.Reset()
		pool.Reset()
		pool.RefreshFromStore()

		excl := pf.Run(ctx, w.Subscriptions, w.TargetDate)
		co.SetAccountExclusions(excl)

		tasks := buildScanTasks(w)
		onSlots := func(batch scanner.SlotBatch) {
			hub.Publish(events.KindSlotsDiscovered, batch)
			co.OnSlotsDiscovered(ctx, batch.Slots, batch.Restaurant, batch.TargetDate, batch.PartySize)
		}
		onComplete := func(stats scanner.Stats) {
			scanStats.Record(stats)
			hub.Publish(events.KindScanComplete, stats)
		}

		sc := scanner.New(client, pool, st, hub, cfg.Scan.Interval, cfg.UseProxies, onSlots, onComplete, log)
		sc.Run(ctx, tasks, w.ReleaseDateTime.Add(cfg.Scan.Timeout))
	}
	sched := scheduler.New(st, cfg.Scan.LeadTime, onWindowStart, log)
	st.SetBlackoutPredicate(sched.BlackoutPredicate(defaultBlackoutWindow))
	st.AddPostSyncHook(sched.OnStoreSync)
	sched.Start()

	passiveCtx, passiveCancel := context.WithCancel(ctx)
	if cfg.Passive.Enabled {
		blackout := time.Duration(cfg.Passive.BlackoutMinutes) * time.Minute
		onMatch := func(ctx context.Context, slots []apiclient.Slot, targetDate string, matchedTargets []models.FullSubscription) {
			co.OnPassiveSlotsDiscovered(ctx, slots, targetDate, matchedTargets)
		}
		monitor := passive.New(st, client, hub, cfg.Passive.PollInterval, blackout, cfg.Passive.VenueGap, sched.GetNextReleaseTimes, onMatch, log)
		go monitor.Run(passiveCtx)
	}

	st.StartPeriodicSync(ctx)

	router := httpapi.SetupRouter(httpapi.RouterConfig{
		DB: db, Scheduler: sched, Pool: pool, Coordinator: co, ScanStats: scanStats,
		DryRun: cfg.DryRun, Environment: cfg.Environment, Logger: log,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting http server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	passiveCancel()
	sched.Stop()
	st.StopPeriodicSync()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", "error", err)
	}

	bridge.Stop()
	if natsConn != nil {
		natsConn.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info("shutdown complete")
	os.Exit(0)
}

// buildScanTasks dedupes a window's subscriptions into one Task per unique
// (restaurant, partySize) pair, so the Scanner never polls redundantly.
func buildScanTasks(w scheduler.Window) []scanner.Task {
	type key struct {
		restaurantID int64
		partySize    int
	}
	seen := make(map[key]bool)
	tasks := make([]scanner.Task, 0, len(w.Subscriptions))
	for _, fs := range w.Subscriptions {
		k := key{restaurantID: fs.Restaurant.ID, partySize: fs.Subscription.PartySize}
		if seen[k] {
			continue
		}
		seen[k] = true
		tasks = append(tasks, scanner.Task{Restaurant: fs.Restaurant, PartySize: fs.Subscription.PartySize})
	}
	return tasks
}
