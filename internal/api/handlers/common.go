package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
	"github.com/stockline/stockline_service/pkg/logger"
)

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// requestLogger returns the per-request logger set by the logging middleware,
// or fallback when the route runs without it.
func requestLogger(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, exists := c.Get("logger"); exists {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return fallback
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, message, det)
}

// respondInternalError sends an internal server error
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

// respondDomainError maps a service error onto its HTTP status and body.
func respondDomainError(c *gin.Context, err error) {
	status := domainerrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	respondError(c, status, domainerrors.GetErrorCode(err), message, domainerrors.GetErrorDetails(err))
}

// splitList splits a comma separated query value, dropping empty parts.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
