package birdeye

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is implemented by every error produced from a non-OK Birdeye response.
type APIError interface {
	error
	IsRetryable() bool
	RetryAfter() time.Duration
	StatusCode() int
}

// RateLimitError represents a 429 response
type RateLimitError struct {
	Message            string
	RetryAfterDuration time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s (retry after %v)", e.Message, e.RetryAfterDuration)
}

func (e *RateLimitError) IsRetryable() bool         { return true }
func (e *RateLimitError) RetryAfter() time.Duration { return e.RetryAfterDuration }
func (e *RateLimitError) StatusCode() int           { return http.StatusTooManyRequests }

// ServerError represents a 5xx response
type ServerError struct {
	Message string
	Status  int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

func (e *ServerError) IsRetryable() bool         { return true }
func (e *ServerError) RetryAfter() time.Duration { return time.Second }
func (e *ServerError) StatusCode() int           { return e.Status }

// ClientError represents any other 4xx response
type ClientError struct {
	Message string
	Status  int
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error (%d): %s", e.Status, e.Message)
}

func (e *ClientError) IsRetryable() bool         { return false }
func (e *ClientError) RetryAfter() time.Duration { return 0 }
func (e *ClientError) StatusCode() int           { return e.Status }

// UnsuccessfulError is returned when Birdeye answers 200 with success=false.
type UnsuccessfulError struct {
	Message string
}

func (e *UnsuccessfulError) Error() string {
	if e.Message == "" {
		return "birdeye returned success=false"
	}
	return fmt.Sprintf("birdeye returned success=false: %s", e.Message)
}

func (e *UnsuccessfulError) IsRetryable() bool         { return false }
func (e *UnsuccessfulError) RetryAfter() time.Duration { return 0 }
func (e *UnsuccessfulError) StatusCode() int           { return http.StatusOK }

func parseBirdeyeError(statusCode int, header http.Header, body []byte) APIError {
	var errorResp struct {
		Message string `json:"message"`
	}
	json.Unmarshal(body, &errorResp)
	message := errorResp.Message
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:            message,
			RetryAfterDuration: retryAfterHeader(header),
		}
	case statusCode >= 500:
		return &ServerError{Message: message, Status: statusCode}
	default:
		return &ClientError{Message: message, Status: statusCode}
	}
}

func retryAfterHeader(header http.Header) time.Duration {
	if header != nil {
		if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 2 * time.Second
}
