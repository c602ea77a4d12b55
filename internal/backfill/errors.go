package backfill

import (
	"errors"
	"fmt"
	"net/http"
)

// Services that can return a StatusError.
const (
	ServiceLookup    = "lookup"
	ServiceImageHost = "imagehost"
	ServiceStore     = "store"
)

var (
	// ErrNotImage is returned when the lookup response is not an image.
	ErrNotImage = errors.New("response is not an image")
	// ErrNoDomain is returned when no domain key could be derived from the website.
	ErrNoDomain = errors.New("no domain in website url")
)

// StatusError reports a non-2xx response from an external service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Classify maps a pipeline error onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return FailureRateLimited
		case statusErr.StatusCode == http.StatusNotFound && statusErr.Service == ServiceLookup:
			return FailureNotFound
		}
	}
	switch {
	case errors.Is(err, ErrNotImage):
		return FailureNotImage
	case errors.Is(err, ErrNoDomain):
		return FailureNoDomain
	default:
		return FailureOther
	}
}
