package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes a non-2xx response from NovaDB.
type APIError struct {
	// Status is the HTTP status code returned by the server.
	Status int
	// Body contains the raw response body bytes, verbatim.
	Body []byte
	// Method and URL identify the failed request.
	Method string
	URL    string
	// ContentType is the response media type, when provided.
	ContentType string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, string(e.Body))
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is an APIError with status 401 or 403.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == status
	}
	return false
}
