package passive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reservesniper/core/internal/models"
)

func TestWeekdayOf_ParsesISODate(t *testing.T) {
	assert.Equal(t, time.Sunday, weekdayOf("2026-08-30"))
	assert.Equal(t, time.Sunday, weekdayOf("not-a-date"))
}

func TestGroupByVenue_GroupsByVenueAndPartySize(t *testing.T) {
	venueA := models.Restaurant{ExternalVenueID: "venue-a"}
	venueB := models.Restaurant{ExternalVenueID: "venue-b"}

	targets := []models.FullSubscription{
		{Restaurant: venueA, Subscription: models.Subscription{PartySize: 2}},
		{Restaurant: venueA, Subscription: models.Subscription{PartySize: 2}},
		{Restaurant: venueA, Subscription: models.Subscription{PartySize: 4}},
		{Restaurant: venueB, Subscription: models.Subscription{PartySize: 2}},
	}

	groups := groupByVenue(targets)
	assert.Len(t, groups, 3)

	found := make(map[string]int)
	for _, g := range groups {
		found[g.restaurant.ExternalVenueID] += len(g.targets)
	}
	assert.Equal(t, 3, found["venue-a"]) // two venue-a groups (party 2 with 2 targets, party 4 with 1), not merged across venues
	assert.Equal(t, 1, found["venue-b"])
}

func TestInBlackoutWindow_TrueWhenWithinThreshold(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 58, 0, 0, time.UTC)
	releaseAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	m := &Monitor{blackoutMinutes: 5 * time.Minute, nextReleases: func() []time.Time {
		return []time.Time{releaseAt}
	}}
	assert.True(t, m.inBlackoutWindow(now))
}

func TestInBlackoutWindow_FalseWhenOutsideThreshold(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	releaseAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	m := &Monitor{blackoutMinutes: 5 * time.Minute, nextReleases: func() []time.Time {
		return []time.Time{releaseAt}
	}}
	assert.False(t, m.inBlackoutWindow(now))
}

func TestInBlackoutWindow_FalseWithNoReleaseFunc(t *testing.T) {
	m := &Monitor{blackoutMinutes: 5 * time.Minute}
	assert.False(t, m.inBlackoutWindow(time.Now()))
}
