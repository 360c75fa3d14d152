package service

import (
	"context"
	"time"
)

// runAdaptive calls fn immediately, then again after each delay returned by
// next, until fn returns false or ctx is done.
func runAdaptive(ctx context.Context, next func() time.Duration, fn func(context.Context) bool) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !fn(ctx) {
			return
		}
		timer.Reset(next())
	}
}
