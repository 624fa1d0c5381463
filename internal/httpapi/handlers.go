package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/scanner"
	"github.com/reservesniper/core/internal/scheduler"
)

var startTime = time.Now()

// HealthHandler serves /health, /health/live, /health/ready.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health reports process liveness plus uptime.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Live is the liveness probe: the process is up, full stop.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "live"})
}

// Ready is the readiness probe: the durable store must be reachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// StatusHandler serves the supplemented read-only /status endpoint: a
// snapshot of scheduler, scanner, proxy pool and coordinator state for
// operators (spec.md has no equivalent; added in SPEC_FULL.md).
type StatusHandler struct {
	scheduler   *scheduler.Scheduler
	pool        *proxypool.Pool
	coordinator *coordinator.Coordinator
	scanStats   *ScanStatsRecorder
	dryRun      bool
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(sched *scheduler.Scheduler, pool *proxypool.Pool, co *coordinator.Coordinator, scanStats *ScanStatsRecorder, dryRun bool) *StatusHandler {
	return &StatusHandler{scheduler: sched, pool: pool, coordinator: co, scanStats: scanStats, dryRun: dryRun}
}

// Status responds with the current operational snapshot.
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dryRun":           h.dryRun,
		"nextReleaseTimes": h.scheduler.GetNextReleaseTimes(),
		"proxyPool":        h.pool.Stats(),
		"lastScan":         h.scanStats.Snapshot(),
		"activeProcessors": h.coordinator.ActiveProcessorCount(),
	})
}

// ScanStatsRecorder holds the most recent Scanner tick Stats, bridging the
// Scanner's OnScanComplete callback to the read-only /status endpoint.
type ScanStatsRecorder struct {
	mu    sync.Mutex
	stats scanner.Stats
}

// NewScanStatsRecorder constructs an empty recorder.
func NewScanStatsRecorder() *ScanStatsRecorder {
	return &ScanStatsRecorder{}
}

// Record stores the latest Scanner Stats; wire as the Scanner's onComplete.
func (r *ScanStatsRecorder) Record(s scanner.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = s
}

// Snapshot returns the most recently recorded Stats.
func (r *ScanStatsRecorder) Snapshot() scanner.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
