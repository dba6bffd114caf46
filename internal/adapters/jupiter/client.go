package jupiter

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBaseURL = "https://lite-api.jup.ag"
	priceEndpoint  = "/price/v3"
)

// Config represents Jupiter API configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// StatusError is returned when Jupiter answers with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jupiter returned status %d: %s", e.Status, e.Body)
}

// Client forwards price lookups to the Jupiter Price API
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Jupiter client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	st := gobreaker.Settings{
		Name:        "JupiterPriceAPI",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		logger:         logger,
	}
}

// Prices returns the raw Jupiter price response for a comma separated id list.
func (c *Client) Prices(ctx context.Context, ids string) ([]byte, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, ids)
	})
	if err != nil {
		c.logger.Warn("Jupiter price request failed", zap.String("ids", ids), zap.Error(err))
		return nil, fmt.Errorf("jupiter prices failed: %w", err)
	}
	return result.([]byte), nil
}

func (c *Client) doRequest(ctx context.Context, ids string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues("jupiter", "price").Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues("jupiter", "price", metrics.Outcome(err)).Inc()
	}()

	params := url.Values{}
	params.Set("ids", ids)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+priceEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
