package coordinator

import (
	"context"

	"github.com/reservesniper/core/internal/apiclient"
)

// UpstreamClient is the subset of apiclient.Client's surface the
// Coordinator depends on for the details->book protocol (spec §4.F steps
// 2-4). Seamed as an interface so tests can substitute a fake upstream
// instead of dialing a real (or guaranteed-unreachable) host.
type UpstreamClient interface {
	WithProxy(proxyURL string) (UpstreamClient, error)
	GetDetails(ctx context.Context, venueID, day string, partySize int, configID, userAuthToken string) (*apiclient.BookToken, error)
	Book(ctx context.Context, bookToken string, paymentMethodID int64) (*apiclient.BookResult, error)
}

// apiClientAdapter adapts *apiclient.Client to UpstreamClient: WithProxy's
// concrete return type can't satisfy the interface method directly, since
// Go has no covariant return types.
type apiClientAdapter struct {
	c *apiclient.Client
}

// WrapClient adapts a concrete upstream API client for use by a Coordinator.
func WrapClient(c *apiclient.Client) UpstreamClient {
	return apiClientAdapter{c: c}
}

func (a apiClientAdapter) WithProxy(proxyURL string) (UpstreamClient, error) {
	proxied, err := a.c.WithProxy(proxyURL)
	if err != nil {
		return nil, err
	}
	return apiClientAdapter{c: proxied}, nil
}

func (a apiClientAdapter) GetDetails(ctx context.Context, venueID, day string, partySize int, configID, userAuthToken string) (*apiclient.BookToken, error) {
	return a.c.GetDetails(ctx, venueID, day, partySize, configID, userAuthToken)
}

func (a apiClientAdapter) Book(ctx context.Context, bookToken string, paymentMethodID int64) (*apiclient.BookResult, error) {
	return a.c.Book(ctx, bookToken, paymentMethodID)
}
