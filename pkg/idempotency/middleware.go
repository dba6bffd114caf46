package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the largest body hashed for replay detection
	MaxBodySize = 1 << 20

	DefaultTTL = 24 * time.Hour

	keyPrefix    = "idempotency:"
	minKeyLength = 8
	maxKeyLength = 128
)

// Store persists replayable responses.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Record is a stored response for an idempotency key.
type Record struct {
	RequestHash string    `json:"requestHash"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Status      int       `json:"status"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware replays the stored response when a state-changing request is
// retried with the same Idempotency-Key. Requests without the header pass
// through. isMiss tells an absent key apart from a store failure; store
// failures let the request through.
func Middleware(store Store, isMiss func(error) bool, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(c *gin.Context) {
		if !isStateChanging(c.Request.Method) {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		if err := ValidateKey(idempotencyKey); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid idempotency key",
				"details":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			return
		}

		bodyBytes, err := ReadBody(c.Request.Body, MaxBodySize)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		requestHash := HashRequest(c.Request.Method, c.Request.URL.Path, bodyBytes)
		storeKey := keyPrefix + idempotencyKey

		var existing Record
		err = store.Get(c.Request.Context(), storeKey, &existing)
		switch {
		case err == nil:
			if existing.RequestHash != requestHash {
				logger.Warn("Idempotency key reused with a different request",
					zap.String("idempotency_key", idempotencyKey),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":      "Idempotency key conflict",
					"details":    "key was already used for a different request",
					"request_id": c.GetString("request_id"),
				})
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(existing.Status, "application/json; charset=utf-8", existing.Body)
			c.Abort()
			return
		case !isMiss(err):
			logger.Error("Failed to check idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		// Only successful outcomes are replayed; failures may be retried.
		if status >= http.StatusBadRequest {
			return
		}

		record := Record{
			RequestHash: requestHash,
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Status:      status,
			Body:        writer.body.Bytes(),
			CreatedAt:   time.Now().UTC(),
		}
		if err := store.Set(context.WithoutCancel(c.Request.Context()), storeKey, record, ttl); err != nil {
			logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
		}
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ValidateKey checks length and character set of a client supplied key.
func ValidateKey(key string) error {
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return fmt.Errorf("key must be between %d and %d characters", minKeyLength, maxKeyLength)
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return errors.New("key may only contain letters, digits, '-' and '_'")
		}
	}
	return nil
}

// ReadBody reads at most limit bytes and fails if the body is larger.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// HashRequest fingerprints the method, path and body of a request.
func HashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
