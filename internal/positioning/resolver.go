package positioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shinoburc/driving-report-go/internal/models"
)

// Resolver wraps a Provider's one-shot fix request with a bounded
// window and a fixed retry budget. A request that exhausts its retries
// fails with ErrTimeout.
type Resolver struct {
	provider Provider
	timeout  time.Duration
	retries  int
}

// NewResolver creates a resolver with the given per-attempt timeout and
// retry count. retries is the number of additional attempts after the
// first.
func NewResolver(provider Provider, timeout time.Duration, retries int) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Resolver{provider: provider, timeout: timeout, retries: retries}
}

// Fix requests a single fix, retrying on timeout. Unavailability is not
// retried: a provider that reports itself unavailable will not recover
// within the window.
func (r *Resolver) Fix(ctx context.Context) (models.Fix, error) {
	if !r.provider.Available() {
		return models.Fix{}, ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		fix, err := r.provider.CurrentFix(attemptCtx)
		cancel()

		if err == nil {
			return fix, nil
		}
		if errors.Is(err, ErrUnavailable) {
			return models.Fix{}, err
		}
		if ctx.Err() != nil {
			return models.Fix{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		lastErr = err
	}

	return models.Fix{}, fmt.Errorf("%w after %d attempts: %v", ErrTimeout, r.retries+1, lastErr)
}
