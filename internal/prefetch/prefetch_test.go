package prefetch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/logger"
	"github.com/reservesniper/core/internal/models"
	"github.com/reservesniper/core/internal/prefetch"
)

func fullSub(userID int64, token string) models.FullSubscription {
	return models.FullSubscription{
		Subscription:  models.Subscription{UserID: userID},
		UserAuthToken: token,
	}
}

func TestRun_ExcludesUserWithMatchingReservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("auth_token")
		w.Header().Set("Content-Type", "application/json")
		switch token {
		case "tok-1":
			_ = json.NewEncoder(w).Encode([]apiclient.UpcomingReservation{
				{Day: "2026-08-30", VenueID: "venue-x", Time: "19:00"},
			})
		default:
			_ = json.NewEncoder(w).Encode([]apiclient.UpcomingReservation{})
		}
	}))
	defer srv.Close()

	client := apiclient.New(srv.URL, "key", 5*time.Second, logger.New("error"))
	p := prefetch.New(client, logger.New("error"))

	subs := []models.FullSubscription{fullSub(1, "tok-1"), fullSub(2, "tok-2")}
	excl := p.Run(context.Background(), subs, "2026-08-30")

	assert.True(t, excl[1])
	assert.False(t, excl[2])
}

func TestRun_FailsOpenOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := apiclient.New(srv.URL, "key", 5*time.Second, logger.New("error"))
	p := prefetch.New(client, logger.New("error"))

	subs := []models.FullSubscription{fullSub(1, "tok-1")}
	excl := p.Run(context.Background(), subs, "2026-08-30")

	assert.False(t, excl[1], "a failed fetch must fail open rather than excluding the user")
}

func TestRun_DedupesByUserID(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]apiclient.UpcomingReservation{})
	}))
	defer srv.Close()

	client := apiclient.New(srv.URL, "key", 5*time.Second, logger.New("error"))
	p := prefetch.New(client, logger.New("error"))

	subs := []models.FullSubscription{
		fullSub(1, "tok-1"),
		fullSub(1, "tok-1"), // same user subscribed to a second restaurant
	}
	excl := p.Run(context.Background(), subs, "2026-08-30")

	require.NotNil(t, excl)
	assert.Equal(t, 1, calls, "a user with multiple subscriptions must be fetched only once")
}
