package driver

import (
	"context"
	"time"
)

// DefaultPollInterval is the interval WaitFor uses when none is given.
const DefaultPollInterval = 100 * time.Millisecond

// WaitOutcome is how a WaitFor call ended.
type WaitOutcome int

const (
	// WaitSatisfied means the condition reported done.
	WaitSatisfied WaitOutcome = iota
	// WaitTimedOut means the timeout expired first.
	WaitTimedOut
	// WaitCancelled means ctx was cancelled first.
	WaitCancelled
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitSatisfied:
		return "satisfied"
	case WaitTimedOut:
		return "timed out"
	case WaitCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WaitResult reports the outcome of a bounded wait.
type WaitResult struct {
	Outcome  WaitOutcome
	Attempts int
	Elapsed  time.Duration
	// LastErr is the error returned by the final condition attempt, if any.
	LastErr error
}

// Satisfied reports whether the condition was met.
func (r WaitResult) Satisfied() bool {
	return r.Outcome == WaitSatisfied
}

// Condition is polled by WaitFor. It returns true once the awaited state
// holds. An error does not stop polling; it is kept as WaitResult.LastErr.
type Condition func(ctx context.Context) (bool, error)

// WaitFor polls cond every interval until it reports done, timeout elapses
// or ctx is cancelled. The condition is always attempted at least once.
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond Condition) WaitResult {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var result WaitResult
	for {
		result.Attempts++
		done, err := cond(ctx)
		result.LastErr = err
		if done && err == nil {
			result.Outcome = WaitSatisfied
			result.Elapsed = time.Since(start)
			return result
		}

		if !time.Now().Before(deadline) {
			result.Outcome = WaitTimedOut
			result.Elapsed = time.Since(start)
			return result
		}

		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if err := ctx.Err(); err != nil {
			result.Outcome = WaitCancelled
			result.LastErr = err
			result.Elapsed = time.Since(start)
			return result
		}
	}
}

// FindWithin waits up to timeout for sel to appear under drv.
func FindWithin(ctx context.Context, drv Driver, sel Selector, timeout time.Duration) (Element, WaitResult) {
	var found Element
	result := WaitFor(ctx, timeout, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		el, err := drv.Find(ctx, sel)
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	})
	return found, result
}
