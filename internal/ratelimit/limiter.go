// Package ratelimit paces browser navigations against the target environment.
// Parallel workers share one limiter so a staging host sees a bounded request rate
// no matter how many dependent runs are in flight.
package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Pacer gates navigations. The zero value and a nil *Pacer never block.
type Pacer struct {
	limiter *rate.Limiter
	waits   atomic.Int64
}

// NewPacer returns a pacer allowing rps navigations per second with a burst of one.
// rps <= 0 disables pacing.
func NewPacer(rps float64) *Pacer {
	if rps <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the next navigation is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	p.waits.Add(1)
	return p.limiter.Wait(ctx)
}

// Enabled reports whether the pacer limits anything.
func (p *Pacer) Enabled() bool {
	return p != nil && p.limiter != nil
}

// Waits returns how many paced waits were performed.
func (p *Pacer) Waits() int64 {
	if p == nil {
		return 0
	}
	return p.waits.Load()
}
