// Package forecast fetches, decodes, and caches upstream forecast data.
//
// All outbound HTTP calls go through the Client, which enforces consistent
// resilience patterns: circuit breaking, retries with exponential backoff
// and jitter, Retry-After handling, and error mapping to types.AppError.
// The Refresher drives the Client on a periodic cadence plus opportunistic
// refresh requests, and the Cache keeps a compressed snapshot of the last
// payload on disk so a restart has data before the first fetch completes.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"skybar/internal/config"
	"skybar/internal/types"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultUserAgent = "skybard/1.0"
	minRetryWait     = 500 * time.Millisecond
	maxRetryWait     = 10 * time.Second
	// maxResponseSize caps the decoded body; forecast payloads are a few
	// hundred KB at most.
	maxResponseSize = 4 << 20
)

// Client fetches forecasts from an Open-Meteo style HTTP API. It implements
// types.ForecastSource.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	baseURL    string
	maxRetries int
	userAgent  string
	sleepFn    func(time.Duration)
	nowFn      func() time.Time
}

var _ types.ForecastSource = (*Client)(nil)

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a forecast Client from the given configuration.
func NewClient(cfg config.ForecastConfig, opts ...ClientOption) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "forecast-upstream",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breaker:    cb,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		userAgent:  defaultUserAgent,
		sleepFn:    time.Sleep,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch retrieves the hourly and 15-minutely forecast for the location and
// decodes it into a payload. Cancellation via ctx maps to a fetch_cancelled
// AppError so callers can absorb it silently.
func (c *Client) Fetch(ctx context.Context, loc types.LocationRef) (*types.ForecastPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.forecastURL(loc), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build forecast request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("forecast upstream returned %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if types.IsCancelled(err) {
			return nil, types.NewAppError(types.ErrCodeFetchCancelled, "forecast fetch cancelled", err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read forecast response", err)
	}

	payload, err := decodePayload(body, loc, c.nowFn())
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// forecastURL builds the upstream request URL for the location.
func (c *Client) forecastURL(loc types.LocationRef) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("hourly", "temperature_2m,precipitation_probability,precipitation,weather_code")
	q.Set("minutely_15", "precipitation,weather_code")
	q.Set("forecast_days", "2")
	q.Set("timezone", "UTC")
	return c.baseURL + "/v1/forecast?" + q.Encode()
}

// do executes the request with:
//  1. Circuit breaker wrapping
//  2. Retry on 429/5xx and transport errors (respecting Retry-After)
//  3. Error mapping to types.AppError
//
// On success (2xx/3xx/4xx other than 429), do returns the response as-is and
// the caller owns the body.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.maxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count as failures for the breaker.
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			if r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned 429")
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// Cancelled requests are terminal; the caller went away.
		if ctx.Err() != nil || types.IsCancelled(err) {
			if lastResp != nil {
				lastResp.Body.Close()
			}
			return nil, types.NewAppError(types.ErrCodeFetchCancelled, "forecast fetch cancelled", err)
		}

		// An open breaker means the upstream is already known-bad; do not retry.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}

	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff determines the wait duration before the next retry attempt.
// It respects the Retry-After header if present, otherwise uses exponential
// backoff with full jitter clamped to [minRetryWait, maxRetryWait].
func (c *Client) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > maxRetryWait {
					wait = maxRetryWait
				}
				return wait
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return minRetryWait
				}
				if wait > maxRetryWait {
					wait = maxRetryWait
				}
				return wait
			}
		}
	}

	base := float64(minRetryWait) * math.Pow(2, float64(attempt))
	if base > float64(maxRetryWait) {
		base = float64(maxRetryWait)
	}
	minWait := float64(minRetryWait)
	if base <= minWait {
		return minRetryWait
	}
	jittered := minWait + rand.Float64()*(base-minWait)
	return time.Duration(jittered)
}

// mapError translates HTTP-level failures into domain-level AppErrors.
func (c *Client) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; forecast upstream unavailable",
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				"forecast upstream rate limit exceeded",
				err,
			)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("forecast upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}

	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		"forecast request failed",
		err,
	)
}
