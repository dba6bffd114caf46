package airtable

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/pkg/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBaseURL = "https://api.airtable.com/v0"
	maxPageSize    = 100
)

// Config represents Airtable API configuration
type Config struct {
	APIKey  string
	BaseID  string
	BaseURL string
	Timeout time.Duration
}

// Record is an Airtable row
type Record struct {
	ID          string                 `json:"id"`
	CreatedTime time.Time              `json:"createdTime"`
	Fields      map[string]interface{} `json:"fields"`
}

// ListOptions narrows a list query
type ListOptions struct {
	Formula    string
	SortField  string
	SortDesc   bool
	MaxRecords int
}

// Client is an Airtable REST client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Airtable client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	st := gobreaker.Settings{
		Name:        "AirtableAPI",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.IsRetryable()
			}
			return err == nil
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

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c.config.APIKey != "" && c.config.BaseID != ""
}

// CreateRecord inserts a row into table
func (c *Client) CreateRecord(ctx context.Context, table string, fields map[string]interface{}) (*Record, error) {
	body := map[string]interface{}{
		"fields":   fields,
		"typecast": true,
	}

	var record Record
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, "create", http.MethodPost, c.tablePath(table), body, &record)
	})
	if err != nil {
		c.logger.Error("Failed to create Airtable record", zap.String("table", table), zap.Error(err))
		return nil, fmt.Errorf("create record failed: %w", err)
	}
	return &record, nil
}

// UpdateRecord patches the given fields of a row
func (c *Client) UpdateRecord(ctx context.Context, table, recordID string, fields map[string]interface{}) (*Record, error) {
	body := map[string]interface{}{
		"fields":   fields,
		"typecast": true,
	}

	var record Record
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, "update", http.MethodPatch, c.tablePath(table)+"/"+url.PathEscape(recordID), body, &record)
	})
	if err != nil {
		c.logger.Error("Failed to update Airtable record",
			zap.String("table", table),
			zap.String("record_id", recordID),
			zap.Error(err))
		return nil, fmt.Errorf("update record failed: %w", err)
	}
	return &record, nil
}

// ListRecords returns the first page of rows matching opts in a single
// request. Rows beyond maxPageSize are not fetched.
func (c *Client) ListRecords(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(maxPageSize))
	if opts.Formula != "" {
		params.Set("filterByFormula", opts.Formula)
	}
	if opts.SortField != "" {
		params.Set("sort[0][field]", opts.SortField)
		if opts.SortDesc {
			params.Set("sort[0][direction]", "desc")
		}
	}
	if opts.MaxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
	}

	var resp struct {
		Records []Record `json:"records"`
		Offset  string   `json:"offset"`
	}
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, "list", http.MethodGet, c.tablePath(table)+"?"+params.Encode(), nil, &resp)
	})
	if err != nil {
		c.logger.Error("Failed to list Airtable records", zap.String("table", table), zap.Error(err))
		return nil, fmt.Errorf("list records failed: %w", err)
	}

	if resp.Offset != "" {
		c.logger.Debug("Airtable list truncated to first page",
			zap.String("table", table),
			zap.Int("returned", len(resp.Records)))
	}
	return resp.Records, nil
}

func (c *Client) tablePath(table string) string {
	return "/" + url.PathEscape(c.config.BaseID) + "/" + url.PathEscape(table)
}

func (c *Client) doRequest(ctx context.Context, operation, method, endpoint string, body, response interface{}) (err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues("airtable", operation).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues("airtable", operation, metrics.Outcome(err)).Inc()
	}()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAirtableError(resp.StatusCode, respBody)
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// EscapeFormulaString quotes a value for use inside filterByFormula.
func EscapeFormulaString(value string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
}
