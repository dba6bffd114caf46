package airtable

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx Airtable response.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("airtable error (%d %s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("airtable error (%d %s)", e.Status, e.Type)
}

func (e *APIError) IsRetryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsNotFound reports whether the record or table does not exist.
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// parseAirtableError handles both error shapes Airtable returns:
// {"error":"NOT_FOUND"} and {"error":{"type":"...","message":"..."}}.
func parseAirtableError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Type: http.StatusText(status)}

	var resp struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Error) == 0 {
		apiErr.Message = string(body)
		return apiErr
	}

	var code string
	if err := json.Unmarshal(resp.Error, &code); err == nil {
		apiErr.Type = code
		return apiErr
	}

	var detailed struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Error, &detailed); err == nil {
		if detailed.Type != "" {
			apiErr.Type = detailed.Type
		}
		apiErr.Message = detailed.Message
	}
	return apiErr
}
