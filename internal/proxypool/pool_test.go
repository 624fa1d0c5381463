package proxypool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/testutil"
)

type PoolTestSuite struct {
	suite.Suite
	DB    *gorm.DB
	Store *store.Store
	Pool  *proxypool.Pool
}

func (s *PoolTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(db))
	s.DB = db
	s.Store = store.New(db, time.Minute, logger.New("error"))

	cfg := proxypool.DefaultConfig()
	cfg.AcquireTimeout = 300 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	cfg.MinReuseDelay = 50 * time.Millisecond
	s.Pool = proxypool.New(cfg, s.Store, nil, logger.New("error"))
}

func (s *PoolTestSuite) seedProxies(n int) {
	for i := 0; i < n; i++ {
		p := testutil.NewProxyFactory().Build()
		require.NoError(s.T(), s.DB.Create(&p).Error)
	}
	require.NoError(s.T(), s.Store.Bootstrap(context.Background()))
	s.Pool.RefreshFromStore()
}

func (s *PoolTestSuite) TestAcquireReleaseRoundTrip() {
	s.seedProxies(1)

	proxy := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(proxy)
	s.Equal(1, s.Pool.Stats().InUse)

	s.Pool.Release(proxy.ID)
	s.Equal(0, s.Pool.Stats().InUse)
	s.Equal(1, s.Pool.Stats().Available)
}

func (s *PoolTestSuite) TestAcquireReturnsNilWhenEmpty() {
	proxy := s.Pool.Acquire(context.Background(), 50*time.Millisecond)
	s.Nil(proxy)
}

func (s *PoolTestSuite) TestMarkBadMovesToCooldownAndBlocksAcquire() {
	s.seedProxies(1)

	proxy := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(proxy)
	s.Pool.MarkBad(proxy.ID)

	stats := s.Pool.Stats()
	s.Equal(0, stats.InUse)
	s.Equal(1, stats.Cooldown)

	// While still cooling down, acquire must not return this proxy.
	none := s.Pool.Acquire(context.Background(), 50*time.Millisecond)
	s.Nil(none)
}

func (s *PoolTestSuite) TestResetReturnsInUseAndCooldownToAvailable() {
	s.seedProxies(2)

	a := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(a)
	b := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(b)
	s.Pool.MarkBad(b.ID)

	s.Pool.Reset()
	stats := s.Pool.Stats()
	s.Equal(2, stats.Available)
	s.Equal(0, stats.InUse)
	s.Equal(0, stats.Cooldown)
}

func (s *PoolTestSuite) TestPartitionInvariantAcrossAllOperations() {
	s.seedProxies(3)
	total := func() int {
		st := s.Pool.Stats()
		return st.Available + st.InUse + st.Cooldown
	}
	s.Equal(3, total())

	p1 := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(p1)
	s.Equal(3, total())

	s.Pool.MarkBad(p1.ID)
	s.Equal(3, total())

	s.Pool.Reset()
	s.Equal(3, total())
}

func (s *PoolTestSuite) TestMinReuseDelayEnforcedWithoutRedis() {
	s.seedProxies(1)

	proxy := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(proxy)
	s.Pool.Release(proxy.ID)

	// Released less than MinReuseDelay ago: must not be handed back out,
	// even with no Redis mirror configured (spec §8).
	none := s.Pool.Acquire(context.Background(), 20*time.Millisecond)
	s.Nil(none)

	time.Sleep(60 * time.Millisecond) // > cfg.MinReuseDelay from SetupTest
	again := s.Pool.Acquire(context.Background(), time.Second)
	s.Require().NotNil(again)
	s.Equal(proxy.ID, again.ID)
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}
