package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reservesniper/core/internal/logger"
)

func newTestCoordinator() *Coordinator {
	return New(nil, nil, nil, nil, false, logger.New("error"))
}

func TestTryClaimSlot_RoundTrip(t *testing.T) {
	c := newTestCoordinator()
	key := SlotKey{RestaurantID: 1, TargetDate: "2026-08-30", SlotTime: "19:30"}

	assert.True(t, c.tryClaimSlot(key, 100))
	assert.False(t, c.tryClaimSlot(key, 200), "a second user must not be able to claim an already-claimed slot")

	c.releaseSlot(key, 100)
	assert.True(t, c.tryClaimSlot(key, 200), "releasing the owner's claim must return the slot to unclaimed")
}

func TestReleaseSlot_NonOwnerIsNoOp(t *testing.T) {
	c := newTestCoordinator()
	key := SlotKey{RestaurantID: 1, TargetDate: "2026-08-30", SlotTime: "19:30"}

	assert.True(t, c.tryClaimSlot(key, 100))
	c.releaseSlot(key, 999) // not the owner
	assert.False(t, c.tryClaimSlot(key, 200), "a non-owner release must not free another user's claim")
}

func TestSuccessfulBooking_BlocksFutureProcessorsInWindow(t *testing.T) {
	c := newTestCoordinator()
	key := ProcessorKey{UserID: 1, RestaurantID: 2, TargetDate: "2026-08-30"}

	c.onProcessorTerminated(key, UserBookingResult{UserID: 1, RestaurantID: 2, TargetDate: "2026-08-30", Success: true})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.successfulBookings[key])
	assert.False(t, c.activeProcessors[key])
}
