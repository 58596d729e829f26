package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

const (
	retryWaitMin    = 100 * time.Millisecond
	retryWaitMax    = 10 * time.Second
	breakerCooldown = 30 * time.Second
)

// Prediction is one batch scoring result.
type Prediction struct {
	Probabilities []float64
	ModelVersion  string
}

type predictRequest struct {
	Rows []models.FeatureRow `json:"rows"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
}

// Client calls the model service over HTTP with retries, rate limiting and a
// consecutive-failure circuit breaker.
type Client struct {
	retry   *retryablehttp.Client
	limiter *rate.Limiter
	breaker *breaker
	baseURL string
	apiKey  string
	logger  *logrus.Logger
}

// NewClient creates a model service client from configuration.
func NewClient(cfg *config.ModelServiceConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = retryWaitMin
	retryClient.RetryWaitMax = retryWaitMax
	retryClient.CheckRetry = retryPolicy()
	retryClient.Logger = nil

	return &Client{
		retry:   retryClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		breaker: &breaker{
			threshold: cfg.BreakerFailures,
			cooldown:  breakerCooldown,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// PredictBatch posts feature rows to /predict and returns one top-3
// probability per row, in input order.
func (c *Client) PredictBatch(ctx context.Context, rows []models.FeatureRow) (*Prediction, error) {
	if len(rows) == 0 {
		return &Prediction{}, nil
	}

	start := time.Now()

	body, err := json.Marshal(predictRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("prediction request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(pr.Probabilities) != len(rows) {
		return nil, fmt.Errorf("%w: got %d probabilities for %d rows", ErrInvalidResponse, len(pr.Probabilities), len(rows))
	}
	for i, p := range pr.Probabilities {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: probability %v at index %d out of range", ErrInvalidResponse, p, i)
		}
	}

	metrics.RecordModelPredictionLatency(time.Since(start).Seconds())
	c.logger.WithFields(logrus.Fields{
		"rows":          len(rows),
		"model_version": pr.ModelVersion,
		"duration":      time.Since(start),
	}).Debug("Model predictions fetched")

	return &Prediction{Probabilities: pr.Probabilities, ModelVersion: pr.ModelVersion}, nil
}

// HealthCheck probes the model service. It bypasses the circuit breaker and
// rate limiter so recovery is observable while the circuit is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return err
	}

	resp, err := c.retry.Do(retryReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.retry.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.breaker.allow(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.retry.Do(retryReq)
	if err != nil {
		c.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		c.recordFailure(fmt.Errorf("status %d", resp.StatusCode))
	} else {
		c.breaker.success()
	}

	return resp, nil
}

func (c *Client) recordFailure(err error) {
	if c.breaker.failure(err) {
		metrics.RecordCircuitBreakerTrip()
		c.logger.WithFields(logrus.Fields{
			"failures": c.breaker.threshold,
			"cooldown": c.breaker.cooldown,
		}).Warn("Model service circuit opened")
	}
}

// retryPolicy retries network errors, rate limiting and transient server
// errors; other client errors fail immediately.
func retryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, err
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true, nil
		}

		return false, nil
	}
}

// breaker short-circuits calls after threshold consecutive failures. Once the
// cooldown elapses a single probe is admitted; its outcome closes or re-opens
// the circuit.
type breaker struct {
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	probing   bool
	lastErr   error
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return nil
	}
	if time.Now().Before(b.openUntil) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, b.lastErr)
	}
	if b.probing {
		return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	}
	b.probing = true
	return nil
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.openUntil = time.Time{}
	b.probing = false
	b.lastErr = nil
}

// failure records one failed call and reports whether it opened the circuit.
func (b *breaker) failure(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastErr = err
	b.failures++
	b.probing = false
	if b.failures < b.threshold {
		return false
	}

	wasOpen := !b.openUntil.IsZero() && time.Now().Before(b.openUntil)
	b.openUntil = time.Now().Add(b.cooldown)
	return !wasOpen
}
