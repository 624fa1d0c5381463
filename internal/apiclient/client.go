// Package apiclient is a thin, stateless-per-request wrapper around the
// upstream reservation platform's HTTP/JSON surface (spec §4.A, §6). It
// never retries and never classifies its own errors into a Coordinator
// action — it only raises a structured APIError; callers decide what to
// do with it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/reservesniper/core/internal/logger"
)

// Client is the typed request/response wrapper for find, details, book,
// cancel, user-reservations, and calendar. It holds only the static API
// key; a user auth token is passed per call to the operations that take
// one (GetDetails, GetUpcomingReservations), and WithProxy returns a copy
// routed through a proxy, so a single Client can be reused across users
// and proxies.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     logger.Logger
}

// New creates an upstream API client with the given base URL, static API
// key header, and per-request timeout (spec §5: 30s client timeout).
func New(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     log,
	}
}

// WithProxy returns a copy of the client whose outbound requests are
// routed through proxyURL. A nil/empty proxyURL yields a direct client.
func (c *Client) WithProxy(proxyURL string) (*Client, error) {
	if proxyURL == "" {
		return c, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	transport := &http.Transport{Proxy: http.ProxyURL(parsed)}
	clone := *c
	clone.httpClient = &http.Client{Timeout: c.httpClient.Timeout, Transport: transport}
	return &clone, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Api-Key", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RawBody: string(raw)}
		apiErr.Kind = Classify(resp.StatusCode, string(raw))
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

// FindSlots polls a venue's slot endpoint for a given day and party size.
func (c *Client) FindSlots(ctx context.Context, venueID string, day string, partySize int) ([]Slot, error) {
	path := fmt.Sprintf("/find?venue_id=%s&day=%s&party_size=%d", url.QueryEscape(venueID), url.QueryEscape(day), partySize)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var slots []Slot
	if err := c.do(req, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetDetails exchanges a slot's configId for a book token. The user auth
// token is passed as the auth_token query parameter, which the upstream
// platform uses to bypass a captcha path (spec §6); it is not sent as a
// header, where the bearer value is the static API key as on every request.
func (c *Client) GetDetails(ctx context.Context, venueID, day string, partySize int, configID, userAuthToken string) (*BookToken, error) {
	path := fmt.Sprintf("/details?venue_id=%s&day=%s&party_size=%d&config_id=%s&auth_token=%s",
		url.QueryEscape(venueID), url.QueryEscape(day), partySize, url.QueryEscape(configID), url.QueryEscape(userAuthToken))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var token BookToken
	if err := c.do(req, &token); err != nil {
		return nil, err
	}
	if token.Token == "" {
		return &token, nil
	}
	return &token, nil
}

// Book submits the final booking for a previously-acquired book token.
func (c *Client) Book(ctx context.Context, bookToken string, paymentMethodID int64) (*BookResult, error) {
	pm, err := json.Marshal(PaymentMethod{ID: paymentMethodID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment method: %w", err)
	}
	form := url.Values{}
	form.Set("book_token", bookToken)
	form.Set("payment_method", string(pm))
	form.Set("source_id", "reservesniper")

	req, err := c.newRequest(ctx, http.MethodPost, "/book", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	var result BookResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel releases a previously-confirmed reservation.
func (c *Client) Cancel(ctx context.Context, confirmationToken string) error {
	path := "/cancel?confirmation_token=" + url.QueryEscape(confirmationToken)
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, "")
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetUpcomingReservations lists a user's confirmed reservations, used by
// the Account Reservation Prefetcher (spec §4.H).
func (c *Client) GetUpcomingReservations(ctx context.Context, userAuthToken string) ([]UpcomingReservation, error) {
	path := "/reservations?auth_token=" + url.QueryEscape(userAuthToken)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var reservations []UpcomingReservation
	if err := c.do(req, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

// GetCalendar lists per-date availability status, used by the Passive
// Monitor (spec §4.G).
func (c *Client) GetCalendar(ctx context.Context, venueID string, partySize int, startDate, endDate string) ([]CalendarDay, error) {
	path := fmt.Sprintf("/calendar?venue_id=%s&party_size=%d&start_date=%s&end_date=%s",
		url.QueryEscape(venueID), partySize, url.QueryEscape(startDate), url.QueryEscape(endDate))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var days []CalendarDay
	if err := c.do(req, &days); err != nil {
		return nil, err
	}
	return days, nil
}
