package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const transfersPathFmt = "/v1/addresses/%s/transfers"

// ClientOptions parameterise the indexer client.
type ClientOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MinRequestInterval is the minimum spacing between consecutive
	// requests. The indexer applies one shared quota per key, so pacing
	// lives on the client rather than in any global.
	MinRequestInterval time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	UserAgent          string
}

// Client fetches transfer records from the ledger indexer API.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewClient constructs an indexer client with request pacing.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	interval := opts.MinRequestInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "ledger_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Transfers retrieves up to limit transfer records for the address, oldest
// first. Rate-limit responses are retried with exponential backoff; every
// other failure propagates immediately.
func (c *Client) Transfers(ctx context.Context, address string, limit int) ([]TransferRecord, error) {
	if c.baseURL == "" {
		return nil, errors.New("ledger base url not configured")
	}
	if address == "" {
		return nil, errors.New("address required")
	}
	if limit <= 0 {
		limit = 100
	}

	endpoint := c.baseURL + fmt.Sprintf(transfersPathFmt, address) + "?limit=" + strconv.Itoa(limit)

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		records, retryAfter, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, errRateLimitResponse) {
			return nil, err
		}
		if attempt == c.opts.MaxRetries {
			break
		}

		backoff := c.opts.BackoffBase << attempt
		if retryAfter > backoff {
			backoff = retryAfter
		}
		c.logger.Warn().
			Str("address", address).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("indexer rate limit hit, backing off")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("fetch transfers for %s: %w", address, ErrRateLimited)
}

// errRateLimitResponse is internal to the retry loop; the exported
// ErrRateLimited is only returned once retries are exhausted.
var errRateLimitResponse = errors.New("rate limit response")

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]TransferRecord, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "walletscope/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), errRateLimitResponse
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, parseHTTPError(resp.StatusCode, payload)
	}

	var body struct {
		Transfers []TransferRecord `json:"transfers"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, 0, fmt.Errorf("decode transfers response: %w", err)
	}

	return body.Transfers, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("indexer error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("indexer error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("indexer error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("indexer error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("indexer error (%d)", status)
}

var _ TransferSource = (*Client)(nil)
