package birdeye

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/retry"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBaseURL = "https://public-api.birdeye.so"

	multiPriceEndpoint    = "/defi/multi_price"
	priceEndpoint         = "/defi/price"
	tokenOverviewEndpoint = "/defi/token_overview"
)

// Config represents Birdeye API configuration
type Config struct {
	APIKey     string
	BaseURL    string
	Chain      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client is a Birdeye public API client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	retryPolicy    retry.Policy
	logger         *zap.Logger
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates a new Birdeye client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Chain == "" {
		config.Chain = "solana"
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 500 * time.Millisecond
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	st := gobreaker.Settings{
		Name:        "BirdeyeAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var clientErr *ClientError
			return err == nil || errors.As(err, &clientErr)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     httpClient,
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		retryPolicy: retry.Policy{
			MaxRetries: config.MaxRetries,
			BaseDelay:  config.RetryDelay,
			MaxDelay:   8 * config.RetryDelay,
			Strategy:   retry.StrategyExponential,
			Jitter:     0.1,
			RetryableFunc: func(err error) bool {
				return !errors.Is(err, gobreaker.ErrOpenState) && retry.ShouldRetry(err)
			},
		},
		logger: logger,
	}
}

// MultiPrice fetches prices for up to 100 addresses in one request. Addresses
// Birdeye has no price for map to nil. The call is never retried.
func (c *Client) MultiPrice(ctx context.Context, addresses []string) (map[string]*entities.BirdeyePrice, error) {
	params := url.Values{}
	params.Set("list_address", strings.Join(addresses, ","))
	endpoint := multiPriceEndpoint + "?" + params.Encode()

	var response map[string]*entities.BirdeyePrice
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, "multi_price", endpoint, &response)
	})
	if err != nil {
		c.logger.Warn("Birdeye multi price request failed",
			zap.Int("addresses", len(addresses)),
			zap.Error(err))
		return nil, fmt.Errorf("multi price failed: %w", err)
	}
	if response == nil {
		response = map[string]*entities.BirdeyePrice{}
	}
	return response, nil
}

// Price fetches the current price of a single token
func (c *Client) Price(ctx context.Context, address string) (*entities.BirdeyePrice, error) {
	params := url.Values{}
	params.Set("address", address)
	endpoint := priceEndpoint + "?" + params.Encode()

	var response entities.BirdeyePrice
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestWithRetry(ctx, "price", endpoint, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("price for %s failed: %w", address, err)
	}
	return &response, nil
}

// TokenOverview fetches supply and market data for a token
func (c *Client) TokenOverview(ctx context.Context, address string) (*entities.TokenOverview, error) {
	params := url.Values{}
	params.Set("address", address)
	endpoint := tokenOverviewEndpoint + "?" + params.Encode()

	var response entities.TokenOverview
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestWithRetry(ctx, "token_overview", endpoint, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("token overview for %s failed: %w", address, err)
	}
	return &response, nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, operation, endpoint string, response interface{}) error {
	return retry.Do(ctx, c.retryPolicy, c.logger, func() error {
		return c.doRequest(ctx, operation, endpoint, response)
	})
}

// doRequest performs a single GET against the Birdeye API and decodes the data field
func (c *Client) doRequest(ctx context.Context, operation, endpoint string, response interface{}) (err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues("birdeye", operation).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues("birdeye", operation, metrics.Outcome(err)).Inc()
	}()

	fullURL := c.config.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.config.APIKey)
	req.Header.Set("x-chain", c.config.Chain)

	c.logger.Debug("Sending Birdeye API request",
		zap.String("operation", operation),
		zap.String("url", fullURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseBirdeyeError(resp.StatusCode, resp.Header, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !env.Success {
		return &UnsuccessfulError{Message: env.Message}
	}

	if response != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, response); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return nil
}
