package httpapi

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/scheduler"
)

// RouterConfig holds the dependencies SetupRouter wires into handlers.
type RouterConfig struct {
	DB          *gorm.DB
	Scheduler   *scheduler.Scheduler
	Pool        *proxypool.Pool
	Coordinator *coordinator.Coordinator
	ScanStats   *ScanStatsRecorder
	DryRun      bool
	Environment string
	Logger      logger.Logger
}

// SetupRouter builds the gin engine serving operator-facing read-only
// endpoints (spec.md has no HTTP surface of its own; SPEC_FULL.md adds
// one for operability, grounded on the teacher's router/middleware shape).
func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORS())
	router.Use(RequestLogging(cfg.Logger))

	health := NewHealthHandler(cfg.DB)
	status := NewStatusHandler(cfg.Scheduler, cfg.Pool, cfg.Coordinator, cfg.ScanStats, cfg.DryRun)

	router.GET("/health", health.Health)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
	router.GET("/status", status.Status)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
