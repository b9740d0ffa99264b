package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
// Every open cart event stream holds one.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent stop-the-world pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) == 0 {
			return nil
		}
		if longest := slices.Max(stats.Pause); longest > threshold {
			return errors.Errorf("GC pause %s exceeds threshold %s", longest, threshold)
		}
		return nil
	}
}

// PingCheck adapts a dependency ping to a CheckFunc, wrapping its error with
// the dependency name.
func PingCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrap(err, name)
		}
		return nil
	}
}
