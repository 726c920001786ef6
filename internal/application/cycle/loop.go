package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// CycleRunner runs one cycle at a time.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
	CycleID() int
}

// LoopOptions tune the outer loop.
type LoopOptions struct {
	// Interval is the minimum spacing between cycle starts.
	Interval time.Duration
	// Backoff is the pause after a failure that carries no retry hint.
	Backoff time.Duration
	// MaxCycles stops the loop after that many successful cycles; zero runs forever.
	// With a limit set, the first failure is returned instead of retried.
	MaxCycles int
}

// Loop keeps cycles running, spacing them out and backing off after failures.
type Loop struct {
	Runner  CycleRunner
	Logger  ports.Logger
	Sleeper Sleeper
	Now     func() time.Time
	opts    LoopOptions
}

// NewLoop fills defaults for zero options.
func NewLoop(runner CycleRunner, logger ports.Logger, opts LoopOptions) *Loop {
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = domain.DefaultErrorBackoff
	}
	return &Loop{
		Runner:  runner,
		Logger:  logger,
		Sleeper: TimerSleeper{},
		Now:     time.Now,
		opts:    opts,
	}
}

// Run blocks until ctx is done, an exit directive arrives or MaxCycles is reached.
func (l *Loop) Run(ctx context.Context) error {
	completed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := l.Now()
		err := l.Runner.RunCycle(ctx)
		switch {
		case errors.Is(err, domain.ErrExitRequested):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			if l.opts.MaxCycles > 0 {
				return err
			}
			delay, hinted := RetryAfter(err)
			if !hinted {
				delay = l.opts.Backoff
			}
			l.Logger.Error("cycle failed", err, map[string]interface{}{
				"next_cycle": l.Runner.CycleID() + 1,
				"retry_in":   delay.String(),
				"rate_limit": hinted,
			})
			if err := l.Sleeper.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		completed++
		if l.opts.MaxCycles > 0 && completed >= l.opts.MaxCycles {
			return nil
		}
		if wait := l.opts.Interval - l.Now().Sub(started); wait > 0 {
			l.Logger.Debug("pacing", map[string]interface{}{"cycle": l.Runner.CycleID(), "sleep": wait.String()})
			if err := l.Sleeper.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}
