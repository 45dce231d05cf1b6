package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx HTTP response from a protected operation. Its
// message is only the status code and text, so Classify is decided by the
// response and never by the request URL.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

// NewStatusError records a failed HTTP exchange.
func NewStatusError(method, url string, statusCode int) *StatusError {
	return &StatusError{Method: method, URL: url, StatusCode: statusCode}
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = "unexpected status"
	}
	return fmt.Sprintf("%d %s", e.StatusCode, text)
}

// Endpoint is the request line the response answered, for logs.
func (e *StatusError) Endpoint() string {
	return e.Method + " " + e.URL
}

// StatusCode extracts the HTTP status code from err's chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
