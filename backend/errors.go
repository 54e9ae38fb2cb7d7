package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

// ErrUnknownShape indicates a results payload that is neither an object nor an array.
var ErrUnknownShape = errors.New("unknown results shape")

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

// NewAPIError builds an APIError, preferring the server-provided message.
func NewAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Message: errorMessage(status, body), Body: body}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 or carries a "not found" message.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "not found")
}

// IsAuthError reports whether err is a 401 or 403.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if message := messageValue(payload[key]); message != "" {
				return message
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return "request failed"
}

func messageValue(value any) string {
	switch typed := value.(type) {
	case string:
		return internalstrings.NormalizeWhitespace(typed)
	case map[string]any:
		for _, key := range []string{"message", "msg", "detail", "error"} {
			if message := messageValue(typed[key]); message != "" {
				return message
			}
		}
	case []any:
		for _, item := range typed {
			if message := messageValue(item); message != "" {
				return message
			}
		}
	}
	return ""
}
