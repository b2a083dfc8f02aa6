package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
)

// AirQualityClient fetches the latest pollutant measurements for a city from
// the upstream source.
type AirQualityClient interface {
	GetLatest(ctx context.Context, city string) (models.Concentrations, error)
}

var (
	ErrCityNotFound    = errors.New("city not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrNoMeasurements  = errors.New("no measurements in response")
)

// trackedParameters is the parameter filter sent upstream; responses may
// still carry any subset, or parameters we do not track.
const trackedParameters = "pm25,pm10,no2,so2,co,o3"

// OpenAQClient fetches measurements from an OpenAQ-style endpoint. Transient
// failures are retried with exponential backoff and jitter; the outbound
// limiter smooths the request rate to stay inside the upstream quota.
type OpenAQClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	limiter        *rate.Limiter
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenAQClient creates an OpenAQClient with default retry policy. apiKey
// may be empty; public endpoints serve unauthenticated requests at a lower
// quota.
func NewOpenAQClient(apiKey, apiURL string, timeout time.Duration, rps, burst int) (*OpenAQClient, error) {
	return NewOpenAQClientWithRetry(apiKey, apiURL, timeout, rps, burst, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenAQClientWithRetry creates an OpenAQClient with an explicit retry
// policy. rps <= 0 disables outbound rate limiting.
func NewOpenAQClientWithRetry(apiKey, apiURL string, timeout time.Duration, rps, burst, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenAQClient, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("%w: API URL is required", ErrUpstreamFailure)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	var limiter *rate.Limiter
	if rps > 0 {
		if burst <= 0 {
			burst = rps
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &OpenAQClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		limiter:        limiter,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// openAQResponse mirrors the slice of the upstream schema we rely on.
// Anything else in the payload is ignored so schema drift does not break us.
type openAQResponse struct {
	Results []struct {
		City         string `json:"city"`
		Measurements []struct {
			Parameter string  `json:"parameter"`
			Value     float64 `json:"value"`
		} `json:"measurements"`
	} `json:"results"`
}

// GetLatest fetches the most recent measurements for city, retrying
// transient failures. Returns the parsed concentrations; fields the upstream
// did not report remain nil.
func (c *OpenAQClient) GetLatest(ctx context.Context, city string) (models.Concentrations, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.Concentrations{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.callAPI(ctx, city)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.Concentrations{}, err
		}
	}

	return models.Concentrations{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenAQClient) callAPI(ctx context.Context, city string) (models.Concentrations, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(reqCtx); err != nil {
			observability.UpstreamCallsTotal.WithLabelValues("rate_limited").Inc()
			return models.Concentrations{}, fmt.Errorf("outbound rate limit: %w", err)
		}
	}

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		return models.Concentrations{}, fmt.Errorf("build request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		observability.UpstreamCallDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Concentrations{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.Concentrations{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(status).Inc()
	observability.UpstreamCallDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.Concentrations{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Concentrations{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openAQResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Concentrations{}, fmt.Errorf("parse response: %w", err)
	}

	return c.mapResponse(apiResp, city)
}

func (c *OpenAQClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *OpenAQClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenAQClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("city", city)
	params.Set("limit", "1")
	params.Set("parameter", trackedParameters)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenAQClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// mapResponse extracts tracked parameters from the first result. Unknown
// parameters are skipped; an empty result set is an error so the caller's
// fallback chain can take over.
func (c *OpenAQClient) mapResponse(apiResp openAQResponse, city string) (models.Concentrations, error) {
	if len(apiResp.Results) == 0 {
		return models.Concentrations{}, fmt.Errorf("%w: %s", ErrNoMeasurements, city)
	}

	var conc models.Concentrations
	found := false
	for _, m := range apiResp.Results[0].Measurements {
		v := m.Value
		switch strings.ToLower(m.Parameter) {
		case "pm25":
			conc.PM25 = &v
		case "pm10":
			conc.PM10 = &v
		case "no2":
			conc.NO2 = &v
		case "so2":
			conc.SO2 = &v
		case "co":
			conc.CO = &v
		case "o3":
			conc.O3 = &v
		default:
			continue
		}
		found = true
	}
	if !found {
		return models.Concentrations{}, fmt.Errorf("%w: %s", ErrNoMeasurements, city)
	}
	return conc, nil
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
