// Package probe is the host side of recovery: it runs protected operations,
// reports their failures to a recovery.Controller and re-runs them whenever
// the controller hands control back.
package probe

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// Operation is a protected operation.
type Operation func(ctx context.Context) error

var (
	// ErrExhausted is returned by a one-shot Run when retries are exhausted.
	ErrExhausted = eris.New("probe: retries exhausted")
	// ErrManualActionRequired is returned by a one-shot Run when the failure
	// cannot be retried automatically (for example an auth failure).
	ErrManualActionRequired = eris.New("probe: manual action required")
)

// Options configures a Runner.
type Options struct {
	// Interval re-runs the operation this long after each success. Zero
	// stops at the first success.
	Interval time.Duration
	// OnSnapshot observes every controller transition. It must not issue
	// controller commands.
	OnSnapshot func(recovery.Snapshot)
}

// Runner drives one Operation under its own recovery Controller.
type Runner struct {
	name string
	op   Operation
	ctrl *recovery.Controller
	opts Options

	wake        chan struct{}
	unsubscribe func()
}

// NewRunner binds op to ctrl. The runner owns ctrl and disposes it when Run
// returns.
func NewRunner(name string, op Operation, ctrl *recovery.Controller, opts Options) (*Runner, error) {
	r := &Runner{
		name: name,
		op:   op,
		ctrl: ctrl,
		opts: opts,
		wake: make(chan struct{}, 1),
	}
	unsubscribe, err := ctrl.Subscribe(r.onSnapshot)
	if err != nil {
		return nil, eris.Wrapf(err, "probe: subscribe %s", name)
	}
	r.unsubscribe = unsubscribe
	return r, nil
}

// Name returns the operation name.
func (r *Runner) Name() string { return r.name }

// Controller returns the runner's controller, for hosts issuing manual
// retries and resets.
func (r *Runner) Controller() *recovery.Controller { return r.ctrl }

// Run executes the operation until it succeeds (one-shot mode) or until ctx
// is cancelled (interval mode).
func (r *Runner) Run(ctx context.Context) error {
	defer r.ctrl.Dispose()
	defer r.unsubscribe()

	log := zap.L().With(
		zap.String("operation", r.name),
		zap.String("controller_id", r.ctrl.ID()),
	)

	for {
		err := r.op(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			if s := r.ctrl.Snapshot(); s.Attempt > 0 {
				log.Info("operation recovered", zap.Int("attempt", s.Attempt))
				if rerr := r.ctrl.Reset(); rerr != nil {
					return rerr
				}
			}
			if r.opts.Interval <= 0 {
				return nil
			}
			if werr := r.sleep(ctx, r.opts.Interval); werr != nil {
				return werr
			}
			continue
		}

		if rerr := r.ctrl.Report(err); rerr != nil {
			return rerr
		}
		if werr := r.awaitIdle(ctx); werr != nil {
			return werr
		}
	}
}

// awaitIdle blocks until the controller hands control back to the host. In
// one-shot mode terminal or manual-only states end the run instead.
func (r *Runner) awaitIdle(ctx context.Context) error {
	for {
		s := r.ctrl.Snapshot()
		switch s.Status {
		case recovery.StatusIdle:
			return nil
		case recovery.StatusExhausted:
			if r.opts.Interval <= 0 {
				return eris.Wrapf(ErrExhausted, "%s: %s", r.name, failureMessage(s))
			}
		case recovery.StatusFailed:
			if r.opts.Interval <= 0 {
				return eris.Wrapf(ErrManualActionRequired, "%s: %s", r.name, failureMessage(s))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) onSnapshot(s recovery.Snapshot) {
	if r.opts.OnSnapshot != nil {
		r.opts.OnSnapshot(s)
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func failureMessage(s recovery.Snapshot) string {
	if s.Failure == nil {
		return s.Status.String()
	}
	return s.Failure.Message
}
