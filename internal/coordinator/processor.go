package coordinator

import (
	"context"
	"time"

	"github.com/reservesniper/core/internal/apiclient"
	"github.com/reservesniper/core/internal/events"
	"github.com/reservesniper/core/internal/models"
)

const proxyAcquireTimeout = 10 * time.Second

// tryClaimSlot is the atomic test-and-set of spec §5 Claim map: it
// returns true iff the slot key is unclaimed, inserting userID as owner.
func (c *Coordinator) tryClaimSlot(key SlotKey, userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, claimed := c.claimedSlots[key]; claimed {
		return false
	}
	c.claimedSlots[key] = userID
	return true
}

// releaseSlot is an idempotent no-op if userID no longer owns the claim
// (spec §5: another user may have grabbed it after a retry cycle — which
// cannot actually happen once claimed, but the check stays cheap and
// correct either way).
func (c *Coordinator) releaseSlot(key SlotKey, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.claimedSlots[key]; ok && owner == userID {
		delete(c.claimedSlots, key)
	}
}

// runProcessor drives the sequential claim->acquire->attempt->classify
// state machine over candidates (spec §4.F). It always terminates with
// exactly one UserBookingResult via the post-processor observer.
func (c *Coordinator) runProcessor(ctx context.Context, key ProcessorKey, fs models.FullSubscription, candidates []candidateSlot) {
	result := c.processLoop(ctx, key, fs, candidates)
	c.onProcessorTerminated(key, result)
}

func (c *Coordinator) processLoop(ctx context.Context, key ProcessorKey, fs models.FullSubscription, candidates []candidateSlot) UserBookingResult {
	retry := retryState{}
	holdingClaim := false

	for slotIndex := 0; slotIndex < len(candidates); {
		slot := candidates[slotIndex]
		slotKey := SlotKey{RestaurantID: key.RestaurantID, TargetDate: key.TargetDate, SlotTime: slot.slotTime}

		if !holdingClaim {
			if !c.tryClaimSlot(slotKey, fs.Subscription.UserID) {
				slotIndex++
				continue
			}
			holdingClaim = true
		}

		proxy := c.proxies.Acquire(ctx, proxyAcquireTimeout)
		if proxy == nil {
			c.releaseSlot(slotKey, fs.Subscription.UserID)
			return UserBookingResult{UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate, Success: false, Message: "no proxy"}
		}

		outcome := c.attempt(ctx, key, fs, slot, proxy)

		switch outcome.kind {
		case apiclient.KindWAFBlocked:
			c.proxies.MarkBad(proxy.ID)
			retry.count++
			if retry.count >= maxWAFRetries {
				c.releaseSlot(slotKey, fs.Subscription.UserID)
				c.store.LogBookingError(key.UserID, key.RestaurantID, string(outcome.kind), outcome.message)
				slotIndex++
				retry = retryState{}
				holdingClaim = false
			}
			continue

		case apiclient.KindSoldOut:
			c.proxies.Release(proxy.ID)
			c.store.CreateBookingAttempt(models.BookingAttempt{
				UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate,
				SlotTime: slot.slotTime, Status: models.BookingSoldOut,
			})
			slotIndex++
			retry = retryState{}
			holdingClaim = false
			continue

		case apiclient.KindRateLimited:
			c.proxies.MarkBad(proxy.ID)
			c.releaseSlot(slotKey, fs.Subscription.UserID)
			c.mu.Lock()
			c.rateLimitedUsers[key.UserID] = true
			c.mu.Unlock()
			return UserBookingResult{UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate, Success: false, Message: "rate limited"}

		case apiclient.KindAuthFailed:
			c.proxies.Release(proxy.ID)
			c.releaseSlot(slotKey, fs.Subscription.UserID)
			c.mu.Lock()
			c.authFailedUsers[key.UserID] = true
			c.mu.Unlock()
			return UserBookingResult{UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate, Success: false, Message: "auth failed"}

		case "": // success
			c.proxies.Release(proxy.ID)
			c.store.CreateBookingAttempt(models.BookingAttempt{
				UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate,
				SlotTime: slot.slotTime, Status: models.BookingSuccess, ReservationID: &outcome.reservationID,
			})
			return UserBookingResult{
				UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate,
				Success: true, SlotTime: slot.slotTime, ReservationID: outcome.reservationID,
			}

		default: // SERVER_ERROR, NO_BOOK_TOKEN, UNKNOWN
			c.proxies.Release(proxy.ID)
			c.releaseSlot(slotKey, fs.Subscription.UserID)
			c.store.CreateBookingAttempt(models.BookingAttempt{
				UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate,
				SlotTime: slot.slotTime, Status: models.BookingFailed, ErrorMessage: &outcome.message,
			})
			slotIndex++
			retry = retryState{}
			holdingClaim = false
		}
	}

	return UserBookingResult{UserID: key.UserID, RestaurantID: key.RestaurantID, TargetDate: key.TargetDate, Success: false, Message: "all slots failed"}
}

// attemptOutcome classifies the result of one details+book attempt. kind
// == "" denotes success.
type attemptOutcome struct {
	kind          apiclient.Kind
	message       string
	reservationID string
}

// attempt implements spec §4.F steps 2-4: getDetails, then book (or a
// synthetic success under dryRun), classified via the API error taxonomy.
func (c *Coordinator) attempt(ctx context.Context, key ProcessorKey, fs models.FullSubscription, slot candidateSlot, proxy *models.Proxy) attemptOutcome {
	client := c.client
	if proxied, err := c.client.WithProxy(proxy.URL); err == nil {
		client = proxied
	}

	token, err := client.GetDetails(ctx, fs.Restaurant.ExternalVenueID, key.TargetDate, fs.Subscription.PartySize, slot.configID, fs.UserAuthToken)
	if err != nil {
		return classifyErr(err)
	}
	if token == nil || token.Token == "" {
		return attemptOutcome{kind: apiclient.KindNoBookToken, message: "details call returned no book token"}
	}

	if c.dryRun {
		return attemptOutcome{reservationID: "dry-run"}
	}

	result, err := client.Book(ctx, token.Token, fs.PaymentMethodID)
	if err != nil {
		return classifyErr(err)
	}
	return attemptOutcome{reservationID: result.ReservationID}
}

func classifyErr(err error) attemptOutcome {
	if apiErr, ok := err.(*apiclient.APIError); ok {
		return attemptOutcome{kind: apiErr.Kind, message: apiErr.Error()}
	}
	return attemptOutcome{kind: apiclient.KindUnknown, message: err.Error()}
}

// onProcessorTerminated is the post-processor observer (spec §4.F): marks
// success permanently, always removes the active-processor entry, and
// publishes the outcome event. Rate-limited and auth-failed users are
// flagged by processLoop itself before it returns, not here.
func (c *Coordinator) onProcessorTerminated(key ProcessorKey, result UserBookingResult) {
	c.mu.Lock()
	if result.Success {
		c.successfulBookings[key] = true
	}
	delete(c.activeProcessors, key)
	c.mu.Unlock()

	if c.hub == nil {
		return
	}
	if result.Success {
		c.hub.Publish(events.KindBookingSuccess, result)
	} else {
		c.hub.Publish(events.KindBookingFailed, result)
	}
}
