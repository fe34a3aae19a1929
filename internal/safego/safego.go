// Package safego provides panic-recovering launchers for background work:
// fire-and-forget goroutines and ticker-driven loops.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// under name instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

// Loop calls fn every interval until ctx is done. A panicking iteration is
// logged and the loop keeps running. The returned channel is closed once the
// loop has exited.
func Loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) <-chan struct{} {
	return loop(ctx, name, interval, fn, false)
}

// LoopNow is Loop with one call to fn before the first tick. That call runs
// on the loop goroutine, so the returned channel also waits for it.
func LoopNow(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) <-chan struct{} {
	return loop(ctx, name, interval, fn, true)
}

func loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context), now bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if now {
			runOnce(ctx, name, fn)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce(ctx, name, fn)
			}
		}
	}()
	return done
}

func runOnce(ctx context.Context, name string, fn func(context.Context)) {
	defer recoverPanic(name)
	fn(ctx)
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
	}
}
