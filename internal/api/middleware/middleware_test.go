package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline_service/pkg/logger"
	"github.com/stockline/stockline_service/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(router, http.MethodGet, "/x", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	w = serve(router, http.MethodGet, "/x", "", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Body.String())
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.stockline.io"}))
	router.POST("/api/birdeye", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodOptions, "/api/birdeye", "", map[string]string{"Origin": "https://app.stockline.io"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.stockline.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	w = serve(router, http.MethodPost, "/api/birdeye", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(logger.NewNop()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(router, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestRateLimit(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(NewRateLimiter(2)))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/x", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/x", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/x", "", nil).Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.GetLimiter("1.1.1.1")
	rl.visitors["1.1.1.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.GetLimiter("2.2.2.2")

	assert.Equal(t, 1, rl.Cleanup(time.Minute))
	assert.Len(t, rl.visitors, 1)
}

type stubShared struct {
	result *ratelimit.CheckResult
	err    error
	routes []string
}

func (s *stubShared) Check(_ context.Context, _, route string) (*ratelimit.CheckResult, error) {
	s.routes = append(s.routes, route)
	return s.result, s.err
}

func TestSharedRateLimit(t *testing.T) {
	stub := &stubShared{result: &ratelimit.CheckResult{Allowed: false, RetryAfter: 30 * time.Second, LimitedBy: "ip"}}
	router := gin.New()
	router.Use(SharedRateLimit(stub, logger.NewNop()))
	router.GET("/api/v1/tokens/:address", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/api/v1/tokens/abc", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	require.Len(t, stub.routes, 1)
	assert.Equal(t, "/api/v1/tokens/:address", stub.routes[0])

	stub.err = errors.New("redis down")
	w = serve(router, http.MethodGet, "/api/v1/tokens/abc", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestSizeLimit(t *testing.T) {
	router := gin.New()
	router.Use(RequestSizeLimit(8))
	router.POST("/x", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := serve(router, http.MethodPost, "/x", `{"addresses":"0123456789"}`, map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	router := gin.New()
	router.Use(Metrics(), SecurityHeaders())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/x", "", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
