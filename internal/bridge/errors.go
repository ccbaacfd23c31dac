package bridge

import (
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/curhatin/companion/internal/ratelimit"
)

// Error classes returned by Service. Each wraps an errdefs class so the HTTP
// layer can map it without knowing this package.
var (
	ErrInvalidInput       = errdefs.ErrInvalidArgument.WithMessage("invalid input")
	ErrVerificationFailed = errdefs.ErrPermissionDenied.WithMessage("verification failed")
	ErrConfiguration      = errdefs.ErrInternal.WithMessage("service misconfigured")
	ErrUpstream           = errdefs.ErrUnavailable.WithMessage("upstream platform failure")
)

// RateLimitError reports a throttled request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// ResourceExhausted marks the error for errdefs.IsResourceExhausted.
func (e *RateLimitError) ResourceExhausted() {}

// RetryAfterSeconds reports RetryAfter the way the limiter rounds it.
func (e *RateLimitError) RetryAfterSeconds() int {
	return ratelimit.Decision{RetryAfter: e.RetryAfter}.RetryAfterSeconds()
}

// invalid wraps ErrInvalidInput with a user-facing reason.
func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
