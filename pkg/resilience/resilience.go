// Package resilience provides the single pattern the broker's wire
// protocol needs: bounding a blocking operation to a deadline. Unlike
// the teacher library's fuller resilience toolkit (retry, circuit
// breaker), the broker's failure semantics (spec.md §4.9/§7) call for
// no retries anywhere — transient peer errors are silently dropped, not
// retried — so only the timeout helper is carried forward.
package resilience

import (
	"context"
	"time"
)

// Executor is an operation that can be bounded by a deadline.
type Executor func(ctx context.Context) error

// WithTimeout wraps fn so it is canceled if it does not return within d.
// Every outbound peer dial (election, coordinator broadcast, gossip)
// goes through this with the design-default 5s bound from spec.md §5.
func WithTimeout(d time.Duration, fn Executor) Executor {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx)
	}
}
