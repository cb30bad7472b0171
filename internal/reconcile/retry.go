package reconcile

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// DefaultMaxRetries is the per-operation retry budget for transient errors.
const DefaultMaxRetries = 3

// Backoff constants for the pause between retries of one operation.
const (
	maxRetryBackoff = 30 * time.Second
	backoffFactor   = 2.0
	jitterFraction  = 0.25
)

// deadlineSignature is the status the GA4 Admin API reports when it did not
// answer in time. The mutation may still have been applied, so a retry is
// the cheapest way to learn the real outcome.
const deadlineSignature = "DEADLINE_EXCEEDED"

// ErrNotFound is the class of errors meaning the remote resource does not
// exist (or is already archived). Adapters wrap it or implement NotFound.
var ErrNotFound = errors.New("resource not found")

// notFoundSignature is the RPC status the Admin API uses for missing
// resources.
const notFoundSignature = "NOT_FOUND"

type notFound interface {
	NotFound() bool
}

// IsNotFound reports whether err says the target resource is gone.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotFound) {
		return true
	}

	var nf notFound
	if errors.As(err, &nf) {
		return nf.NotFound()
	}

	return strings.Contains(err.Error(), notFoundSignature)
}

// transient is implemented by errors that know whether they are worth
// retrying (e.g. admin.APIError).
type transient interface {
	Transient() bool
}

// IsTransient reports whether err belongs to the retryable class: deadline
// and timeout errors, or errors that declare themselves transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return strings.Contains(err.Error(), deadlineSignature)
}

// retryPolicy decides whether a failed operation gets another attempt.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
}

// acceptable reports whether the failure of op with err is eligible for a
// retry: budget left, run not canceled, and the error is transient.
func (rp retryPolicy) acceptable(ctx context.Context, op *Operation, err error) bool {
	if op.Retried >= rp.maxRetries {
		return false
	}

	if ctx.Err() != nil {
		return false
	}

	return IsTransient(err)
}

// backoff returns the pause before retry number attempt (1-based):
// exponential from base with ±25% jitter, capped at maxRetryBackoff.
func (rp retryPolicy) backoff(attempt int) time.Duration {
	if rp.base <= 0 {
		return 0
	}

	d := float64(rp.base) * math.Pow(backoffFactor, float64(attempt-1))
	if d > float64(maxRetryBackoff) {
		d = float64(maxRetryBackoff)
	}

	d += d * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(d)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
