package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStaleRequest marks a request whose context was cancelled because a
	// newer request superseded it. It is not a failure.
	ErrStaleRequest = errors.New("stale request cancelled")

	// ErrDecode marks a response body that could not be decoded.
	ErrDecode = errors.New("decoding response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// IsCancelled reports whether err stems from cooperative cancellation
// rather than a genuine failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrStaleRequest) || errors.Is(err, context.Canceled)
}

// cancelled wraps a context error so callers can tell it apart from
// transport failures.
func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrStaleRequest, ctxErr)
	}
	return err
}
