package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotConfigured    = errors.New("server not configured")
	ErrCacheMiss        = errors.New("cache miss")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrInvalidState     = errors.New("invalid oauth state")
	ErrTokenUnavailable = errors.New("access token unavailable")
)

// UpstreamError is returned when the mail provider answers with a non-success status
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Body)
}

// From checks if the given error is an UpstreamError
func (e *UpstreamError) From(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

// AsUpstreamError unwraps err into an UpstreamError if it is one
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}
