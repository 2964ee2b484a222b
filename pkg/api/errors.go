package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusTransport marks failures where no HTTP response was obtained
// (DNS failure, refused connection, aborted transfer).
const StatusTransport = 0

// Error is the uniform failure value returned by the request client.
// StatusCode mirrors the HTTP status for server failures, is
// http.StatusRequestTimeout for a client-enforced deadline, and
// StatusTransport when the transport produced no response at all.
type Error struct {
	Message    string
	StatusCode int
	// Payload holds the raw error body when the server returned one.
	Payload []byte
}

func (e *Error) Error() string {
	switch e.StatusCode {
	case StatusTransport:
		return fmt.Sprintf("network error: %s", e.Message)
	case http.StatusRequestTimeout:
		return fmt.Sprintf("request timed out: %s", e.Message)
	default:
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
}

// IsTimeout reports whether err is a client-enforced request timeout.
func IsTimeout(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusRequestTimeout
}

// IsNetwork reports whether err is a transport-level failure with no response.
func IsNetwork(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == StatusTransport
}

// IsNotFound reports whether err carries HTTP 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsServer reports whether err carries a 5xx status.
func IsServer(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError
}
