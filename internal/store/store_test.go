package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/testutil"
)

type StoreTestSuite struct {
	suite.Suite
	DB    *gorm.DB
	Store *store.Store
}

func (s *StoreTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(db))
	s.DB = db
	s.Store = store.New(db, time.Minute, logger.New("error"))
}

func (s *StoreTestSuite) seedBasicFixture() (models.User, models.Restaurant) {
	user := testutil.NewUserFactory().WithExternalChatID("chat-1").WithAuthToken("tok-1").Build()
	s.Require().NoError(s.DB.Create(&user).Error)

	restaurant := testutil.NewRestaurantFactory().WithExternalVenueID("venue-1").Build()
	s.Require().NoError(s.DB.Create(&restaurant).Error)
	return user, restaurant
}

func (s *StoreTestSuite) TestBootstrapLoadsEnabledEntities() {
	user, restaurant := s.seedBasicFixture()
	sub := models.Subscription{
		UserID: user.ID, RestaurantID: restaurant.ID, PartySize: 2,
		WindowStart: "18:00", WindowEnd: "21:00", Enabled: true,
	}
	s.Require().NoError(s.DB.Create(&sub).Error)

	s.Require().NoError(s.Store.Bootstrap(context.Background()))

	full := s.Store.FullSubscriptions()
	s.Require().Len(full, 1)
	s.Equal(user.ID, full[0].Subscription.UserID)
	s.Equal("tok-1", full[0].UserAuthToken)
}

func (s *StoreTestSuite) TestFullSubscriptionsExcludesUsersMissingAuth() {
	restaurant := testutil.NewRestaurantFactory().WithExternalVenueID("venue-2").Build()
	s.Require().NoError(s.DB.Create(&restaurant).Error)
	user := testutil.NewUserFactory().WithExternalChatID("chat-2").Unauthenticated().Build()
	s.Require().NoError(s.DB.Create(&user).Error)
	sub := models.Subscription{
		UserID: user.ID, RestaurantID: restaurant.ID, PartySize: 2,
		WindowStart: "18:00", WindowEnd: "21:00", Enabled: true,
	}
	s.Require().NoError(s.DB.Create(&sub).Error)

	s.Require().NoError(s.Store.Bootstrap(context.Background()))

	s.Empty(s.Store.FullSubscriptions())
}

func (s *StoreTestSuite) TestUpsertSubscriptionModifiesInPlace() {
	user, restaurant := s.seedBasicFixture()
	s.Require().NoError(s.Store.Bootstrap(context.Background()))

	sub := models.Subscription{UserID: user.ID, RestaurantID: restaurant.ID, PartySize: 2, WindowStart: "18:00", WindowEnd: "21:00", Enabled: true}
	s.Store.UpsertSubscription(sub)
	first := s.Store.FullSubscriptions()
	s.Require().Len(first, 1)
	firstID := first[0].Subscription.ID

	// A second identical upsert must modify in place, not duplicate.
	s.Store.UpsertSubscription(models.Subscription{
		ID: firstID, UserID: user.ID, RestaurantID: restaurant.ID, PartySize: 2,
		WindowStart: "18:00", WindowEnd: "21:00", Enabled: true,
	})
	second := s.Store.FullSubscriptions()
	s.Require().Len(second, 1)
	s.Equal(firstID, second[0].Subscription.ID)
}

func (s *StoreTestSuite) TestMarkProxyRateLimitedUpdatesInMemoryView() {
	proxy := testutil.NewProxyFactory().AsDatacenter().Build()
	s.Require().NoError(s.DB.Create(&proxy).Error)
	s.Require().NoError(s.Store.Bootstrap(context.Background()))

	until := time.Now().Add(15 * time.Minute)
	s.Store.MarkProxyRateLimited(proxy.ID, until)

	proxies := s.Store.ProxiesByClass(models.ProxyDatacenter)
	s.Require().Len(proxies, 1)
	s.Require().NotNil(proxies[0].RateLimitedUntil)
	s.WithinDuration(until, *proxies[0].RateLimitedUntil, time.Second)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
