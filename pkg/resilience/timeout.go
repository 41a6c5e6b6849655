// Package resilience contains small guards around long-running operations.
package resilience

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rerankd/rerankd/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. A non-positive timeout runs fn with the parent context
// unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return errors.Newf(errors.ErrTimeout, http.StatusServiceUnavailable,
			"%s exceeded the %v limit", name, timeout)
	}
}
