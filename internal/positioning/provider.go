// Package positioning abstracts the device location provider: one-shot
// fixes, a continuous watch subscription, and availability reporting.
package positioning

import (
	"context"
	"errors"

	"github.com/shinoburc/driving-report-go/internal/models"
)

// Provider errors.
var (
	// ErrUnavailable means the provider cannot deliver fixes at all,
	// e.g. no hardware or permission denied.
	ErrUnavailable = errors.New("positioning unavailable")

	// ErrTimeout means a fix request did not resolve within its bounded
	// window, including retries.
	ErrTimeout = errors.New("positioning request timed out")
)

// Provider is the device location source.
type Provider interface {
	// CurrentFix obtains a single fix. Blocks until a fix arrives, the
	// context is done, or the provider fails.
	CurrentFix(ctx context.Context) (models.Fix, error)

	// Watch delivers fixes continuously to onFix until the returned
	// subscription is stopped. onFix may be called from a provider
	// goroutine; callers serialize their own state.
	Watch(onFix func(models.Fix)) (Subscription, error)

	// Available reports whether the provider can deliver fixes.
	Available() bool
}

// Subscription is a handle on an active watch. Stop is idempotent.
type Subscription interface {
	Stop()
}
