package handlers

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeInvalidAddress     = "INVALID_ADDRESS"
	ErrCodeInvalidSource      = "INVALID_SOURCE"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUpstreamError      = "UPSTREAM_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
