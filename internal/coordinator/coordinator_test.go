package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/coordinator"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/proxypool"
	"github.com/reservesniper/core/internal/store"
	"github.com/reservesniper/core/internal/testutil"
)

// fakeUpstreamClient implements coordinator.UpstreamClient entirely
// in-process, so tests get a successful details call instead of dialing a
// real (or guaranteed-unreachable) host. The suite runs the Coordinator
// with dryRun on, so Book is not reached by these tests.
type fakeUpstreamClient struct {
	mu        sync.Mutex
	bookCalls int
}

func (f *fakeUpstreamClient) WithProxy(proxyURL string) (coordinator.UpstreamClient, error) {
	return f, nil
}

func (f *fakeUpstreamClient) GetDetails(ctx context.Context, venueID, day string, partySize int, configID, userAuthToken string) (*apiclient.BookToken, error) {
	return &apiclient.BookToken{Token: "book-token-" + configID}, nil
}

func (f *fakeUpstreamClient) Book(ctx context.Context, bookToken string, paymentMethodID int64) (*apiclient.BookResult, error) {
	f.mu.Lock()
	f.bookCalls++
	f.mu.Unlock()
	return &apiclient.BookResult{ReservationID: "res-1", ConfirmationToken: "conf-1"}, nil
}

type CoordinatorTestSuite struct {
	suite.Suite
	DB    *gorm.DB
	Store *store.Store
	Pool  *proxypool.Pool
}

func (s *CoordinatorTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(db))
	s.DB = db
	s.Store = store.New(db, time.Minute, logger.New("error"))

	cfg := proxypool.DefaultConfig()
	cfg.AcquireTimeout = 500 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MinReuseDelay = 0
	s.Pool = proxypool.New(cfg, s.Store, nil, logger.New("error"))
}

func (s *CoordinatorTestSuite) seedProxies(n int) {
	for i := 0; i < n; i++ {
		p := testutil.NewProxyFactory().Build()
		require.NoError(s.T(), s.DB.Create(&p).Error)
	}
}

// seedRestaurant seeds one enabled restaurant row.
func (s *CoordinatorTestSuite) seedRestaurant() models.Restaurant {
	restaurant := testutil.NewRestaurantFactory().WithExternalVenueID("venue-x").Build()
	require.NoError(s.T(), s.DB.Create(&restaurant).Error)
	return restaurant
}

// seedFullSub seeds one authenticated user subscribed to restaurant.
func (s *CoordinatorTestSuite) seedFullSub(restaurant models.Restaurant, userExternal string, partySize int) models.FullSubscription {
	user := testutil.NewUserFactory().WithExternalChatID(userExternal).Build()
	require.NoError(s.T(), s.DB.Create(&user).Error)

	sub := testutil.NewSubscriptionFactory().WithUserID(user.ID).WithRestaurantID(restaurant.ID).WithPartySize(partySize).Build()
	require.NoError(s.T(), s.DB.Create(&sub).Error)

	return models.FullSubscription{
		Subscription: sub, UserAuthToken: *user.AuthToken, PaymentMethodID: *user.PaymentMethodID,
		ExternalChatID: userExternal, Restaurant: restaurant,
	}
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) TestHappyPathSingleUser() {
	s.seedProxies(1)
	restaurant := s.seedRestaurant()
	s.seedFullSub(restaurant, "chat-happy-path", 2)
	require.NoError(s.T(), s.Store.Bootstrap(context.Background()))
	s.Pool.RefreshFromStore()

	hub := events.NewHub()
	results := make(chan coordinator.UserBookingResult, 1)
	id, ch := hub.Subscribe(4)
	go func() {
		for env := range ch {
			if r, ok := env.Payload.(coordinator.UserBookingResult); ok {
				results <- r
			}
		}
	}()
	defer hub.Unsubscribe(id)

	co := coordinator.New(s.Store, s.Pool, &fakeUpstreamClient{}, hub, true /* dryRun */, logger.New("error"))

	full := s.Store.FullSubscriptions()
	require.Len(s.T(), full, 1)

	slots := []apiclient.Slot{{TimeString: "19:30", ConfigID: "t1"}}
	co.OnSlotsDiscovered(context.Background(), slots, full[0].Restaurant, "2026-08-30", full[0].Subscription.PartySize)

	select {
	case r := <-results:
		s.True(r.Success)
		s.Equal("19:30", r.SlotTime)
	case <-time.After(2 * time.Second):
		s.Fail("processor did not terminate in time")
	}
}

func (s *CoordinatorTestSuite) TestTwoUsersRacingOneSlot_OnlyOneSucceeds() {
	s.seedProxies(2)
	restaurant := s.seedRestaurant()
	s.seedFullSub(restaurant, "chat-racer-1", 2)
	s.seedFullSub(restaurant, "chat-racer-2", 2)
	require.NoError(s.T(), s.Store.Bootstrap(context.Background()))
	s.Pool.RefreshFromStore()

	hub := events.NewHub()
	results := make(chan coordinator.UserBookingResult, 2)
	id, ch := hub.Subscribe(4)
	go func() {
		for env := range ch {
			if r, ok := env.Payload.(coordinator.UserBookingResult); ok {
				results <- r
			}
		}
	}()
	defer hub.Unsubscribe(id)

	co := coordinator.New(s.Store, s.Pool, &fakeUpstreamClient{}, hub, true, logger.New("error"))

	full := s.Store.FullSubscriptions()
	require.Len(s.T(), full, 2)

	slots := []apiclient.Slot{{TimeString: "19:30", ConfigID: "t1"}}
	partySize := full[0].Subscription.PartySize
	co.OnSlotsDiscovered(context.Background(), slots, restaurant, "2026-08-30", partySize)

	successes := 0
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.Success {
				successes++
				s.Equal("19:30", r.SlotTime)
			}
		case <-time.After(2 * time.Second):
			s.Fail("not both processors terminated in time")
		}
	}
	s.Equal(1, successes, "exactly one racing user should claim the slot")
}
