package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse indicates the upstream answered with no body or a JSON null.
	ErrEmptyResponse = errors.New("response is null")
	// ErrUnsupportedBody indicates a body that cannot be sent with the requested content kind.
	ErrUnsupportedBody = errors.New("unsupported request body")
)

// EnvelopeError is returned when the upstream envelope carries a code other
// than 100 or 200. Message is the upstream-provided message.
type EnvelopeError struct {
	Code    int
	Message string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("upstream error (code %d): %s", e.Code, e.Message)
}

// StatusError is returned for non-2xx HTTP responses. Message comes from the
// response envelope when one could be decoded.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// UpstreamMessage returns the upstream-provided message carried by err, if any.
func UpstreamMessage(err error) (string, bool) {
	var envErr *EnvelopeError
	if errors.As(err, &envErr) {
		return envErr.Message, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message, true
	}
	return "", false
}
