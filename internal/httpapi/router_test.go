package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/httpapi"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/scheduler"
	"github.com/reservesniper/core/internal/store"
)

type RouterTestSuite struct {
	suite.Suite
	DB     *gorm.DB
	Router *gin.Engine
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(db))
	s.DB = db

	st := store.New(db, time.Minute, logger.New("error"))
	require.NoError(s.T(), st.Bootstrap(context.Background()))

	pool := proxypool.New(proxypool.DefaultConfig(), st, nil, logger.New("error"))
	sched := scheduler.New(st, 10*time.Minute, func(context.Context, scheduler.Window) {}, logger.New("error"))
	co := coordinator.New(st, pool, nil, nil, true, logger.New("error"))
	scanStats := httpapi.NewScanStatsRecorder()

	s.Router = httpapi.SetupRouter(httpapi.RouterConfig{
		DB: db, Scheduler: sched, Pool: pool, Coordinator: co, ScanStats: scanStats,
		DryRun: true, Environment: "test", Logger: logger.New("error"),
	})
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) TestHealthReturns200() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestLiveReturns200() {
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestReadyReturns200WhenDBReachable() {
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestStatusReturns200WithBody() {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "dryRun")
}

func (s *RouterTestSuite) TestUnknownRouteReturns404() {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	s.Equal(http.StatusNotFound, rec.Code)
}
