package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady is returned by ReadinessPoll when the service does not answer
// before the poll timeout.
var ErrNotReady = errors.New("service not ready")

// ErrInvalidPoll is returned by ReadinessPoll when it is configured with a
// non-positive interval or timeout.
var ErrInvalidPoll = errors.New("invalid readiness poll settings")

// FixedDelay waits a constant grace period regardless of whether the service
// is actually ready. It sleeps exactly once per Wait call.
type FixedDelay struct {
	d     time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixedDelay returns a FixedDelay of d.
func NewFixedDelay(d time.Duration) *FixedDelay {
	return &FixedDelay{d: d, sleep: sleepContext}
}

// Duration is the configured grace period.
func (f *FixedDelay) Duration() time.Duration { return f.d }

// Wait sleeps for the grace period once, returning early with ctx.Err() if
// ctx is cancelled.
func (f *FixedDelay) Wait(ctx context.Context) error {
	slog.DebugContext(ctx, "waiting fixed grace period", "duration", f.d.String())
	return f.sleep(ctx, f.d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadinessPoll probes the service with exponential backoff until it reports
// OK or the timeout expires.
type ReadinessPoll struct {
	prober   ServiceProber
	interval time.Duration
	timeout  time.Duration
}

// NewReadinessPoll returns a ReadinessPoll starting at interval and giving up
// after timeout.
func NewReadinessPoll(prober ServiceProber, interval, timeout time.Duration) *ReadinessPoll {
	return &ReadinessPoll{prober: prober, interval: interval, timeout: timeout}
}

// Wait returns nil on the first OK probe, ctx.Err() when ctx ends first, and
// an error wrapping ErrNotReady once the timeout expires. A non-positive
// interval or timeout is rejected without probing, since backoff treats zero
// as "no delay" and "never stop".
func (p *ReadinessPoll) Wait(ctx context.Context) error {
	if p.interval <= 0 || p.timeout <= 0 {
		return fmt.Errorf("%w: poll interval and timeout must be positive (interval %s, timeout %s)",
			ErrInvalidPoll, p.interval, p.timeout)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = p.timeout

	attempts := 0
	op := func() error {
		attempts++
		r := p.prober.Probe(ctx)
		if r.OK {
			return nil
		}
		if r.Error == "" {
			return errors.New("probe not ok")
		}
		return errors.New(r.Error)
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w after %s (%d attempts): %v", ErrNotReady, p.timeout, attempts, err)
	}

	slog.DebugContext(ctx, "service ready", "attempts", attempts)
	return nil
}
