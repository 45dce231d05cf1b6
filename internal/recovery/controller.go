// Package recovery drives bounded, backoff-scheduled recovery of a protected
// operation after it fails.
//
// A Controller classifies each reported failure, decides between automatic
// retry, manual retry and exhaustion, and owns the timers that count down to
// an automatic retry. Hosts observe it through Snapshots delivered to
// subscribers after every transition and render the derived Actions.
package recovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/RealSaake/SkillBridge-sub000/internal/clock"
	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

var (
	// ErrDisposed is returned by commands issued after Dispose.
	ErrDisposed = eris.New("recovery: controller disposed")
	// ErrRetryBudgetExhausted is returned when a retry would exceed MaxRetries.
	ErrRetryBudgetExhausted = eris.New("recovery: retry budget exhausted")
	// ErrNothingToRetry is returned by RetryNow when no failure is on record.
	ErrNothingToRetry = eris.New("recovery: no failure to retry")
	// ErrNilFailure is returned when Report is called with a nil error.
	ErrNilFailure = eris.New("recovery: nil failure reported")
)

// Option customises a Controller.
type Option func(*Controller)

// WithClock sets the clock used for timers and event timestamps.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithSink sets the event sink. The default logs through zap.L().
func WithSink(s Sink) Option {
	return func(ctrl *Controller) { ctrl.sink = s }
}

// WithID overrides the generated controller ID.
func WithID(id string) Option {
	return func(ctrl *Controller) { ctrl.id = id }
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Controller is the recovery state machine for one protected operation.
// Commands may come from any goroutine; they are serialised internally.
type Controller struct {
	id    string
	cfg   Config
	clock clock.Clock
	sink  Sink

	mu       sync.Mutex
	status   Status
	failure  *Failure
	attempt  int
	seconds  int
	delay    time.Duration
	disposed bool

	// gen invalidates callbacks of stopped timers that already started to run.
	gen        uint64
	delayTimer clock.Timer
	tickTimer  clock.Timer

	subs     []subscriber
	nextSub  int
	pending  []Snapshot
	draining bool
}

// New creates an idle Controller.
func New(cfg Config, opts ...Option) (*Controller, error) {
	cfg = applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		clock:  clock.Real(),
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.sink == nil {
		c.sink = NewZapSink(nil)
	}
	return c, nil
}

// ID returns the controller's identifier.
func (c *Controller) ID() string { return c.id }

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// Snapshot returns the current state. It remains callable after Dispose.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Actions derives the host action list from the current state.
func (c *Controller) Actions() []Action {
	return DeriveActions(c.Snapshot(), c.cfg.EscapeTarget)
}

// Subscribe registers fn to receive a Snapshot after every transition. The
// returned func removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) (func(), error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, c.misuse("subscribe")
	}
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Report records a failure of the protected operation. While an automatic
// retry is pending the report is ignored and the countdown continues.
func (c *Controller) Report(err error) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return c.misuse("report")
	}
	if err == nil {
		c.mu.Unlock()
		return ErrNilFailure
	}
	c.reportLocked(err)
	c.mu.Unlock()

	c.flush()
	return nil
}

// RetryNow consumes one retry and returns the controller to Idle so the host
// can re-run the operation. It is rejected when the budget is spent or when
// no failure is on record.
func (c *Controller) RetryNow() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return c.misuse("retry")
	}
	err := c.retryLocked(EventRetryManual)
	c.mu.Unlock()

	c.flush()
	return err
}

// Reset cancels timers, clears the failure and the retry budget, and returns
// to Idle. It is the only way out of Exhausted.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return c.misuse("reset")
	}
	c.stopTimersLocked()
	// Logged with the budget being discarded.
	c.emitLocked(EventReset, c.kindLocked(), nil)
	c.failure = nil
	c.attempt = 0
	c.delay = 0
	c.transitionLocked(StatusIdle)
	c.mu.Unlock()

	c.flush()
	return nil
}

// Dispose cancels every timer and detaches all subscribers. It is idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.stopTimersLocked()
	c.subs = nil
	c.pending = nil
	c.emitLocked(EventDisposed, c.kindLocked(), nil)
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Controller) reportLocked(err error) {
	kind := fault.Classify(err)
	if c.status == StatusRetrying {
		c.emitLocked(EventReportIgnored, kind, err)
		return
	}

	c.stopTimersLocked()
	c.failure = &Failure{Kind: kind, Message: err.Error(), Err: err}
	c.delay = 0
	c.transitionLocked(StatusFailed)
	c.emitLocked(EventFailureClassified, kind, err)

	switch c.cfg.decide(kind, c.attempt) {
	case decideExhaust:
		c.transitionLocked(StatusExhausted)
		c.emitLocked(EventExhausted, kind, err)
	case decideWaitForUser:
	case decideAutoRetry:
		c.delay = c.cfg.NextDelay(kind, c.attempt)
		c.armLocked(c.delay)
		c.seconds = countdownSeconds(c.delay)
		c.transitionLocked(StatusRetrying)
		c.emitLocked(EventRetryScheduled, kind, err)
	}
}

func (c *Controller) retryLocked(event EventName) error {
	if c.status == StatusIdle {
		return ErrNothingToRetry
	}
	kind := c.kindLocked()
	if c.attempt+1 > c.cfg.MaxRetries {
		c.emitLocked(EventRetryRejected, kind, ErrRetryBudgetExhausted)
		return ErrRetryBudgetExhausted
	}

	c.stopTimersLocked()
	c.attempt++
	c.failure = nil
	c.transitionLocked(StatusIdle)
	c.emitLocked(event, kind, nil)
	return nil
}

// transitionLocked moves to status and queues a snapshot for subscribers.
func (c *Controller) transitionLocked(status Status) {
	c.status = status
	if status != StatusRetrying {
		c.seconds = 0
	}
	c.publishLocked()
}

func (c *Controller) armLocked(delay time.Duration) {
	c.stopTimersLocked()
	gen := c.gen
	c.delayTimer = c.clock.AfterFunc(delay, func() { c.onDelayExpired(gen) })
	c.tickTimer = c.clock.AfterFunc(time.Second, func() { c.onTick(gen) })
}

func (c *Controller) stopTimersLocked() {
	c.gen++
	if c.delayTimer != nil {
		c.delayTimer.Stop()
		c.delayTimer = nil
	}
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	if c.disposed || gen != c.gen || c.status != StatusRetrying {
		c.mu.Unlock()
		return
	}
	c.tickTimer = nil
	if c.seconds > 0 {
		c.seconds--
	}
	if c.seconds > 0 {
		c.tickTimer = c.clock.AfterFunc(time.Second, func() { c.onTick(gen) })
	}
	c.publishLocked()
	c.mu.Unlock()

	c.flush()
}

func (c *Controller) onDelayExpired(gen uint64) {
	c.mu.Lock()
	if c.disposed || gen != c.gen || c.status != StatusRetrying {
		c.mu.Unlock()
		return
	}
	c.delayTimer = nil
	_ = c.retryLocked(EventRetryAutomatic)
	c.mu.Unlock()

	c.flush()
}

func (c *Controller) kindLocked() fault.Kind {
	if c.failure == nil {
		return ""
	}
	return c.failure.Kind
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		ControllerID:      c.id,
		Operation:         c.cfg.OperationName,
		Status:            c.status,
		Attempt:           c.attempt,
		MaxRetries:        c.cfg.MaxRetries,
		SecondsUntilRetry: c.seconds,
		DelayMs:           c.delay.Milliseconds(),
		UpdatedAt:         c.clock.Now(),
	}
	if c.failure != nil {
		f := *c.failure
		s.Failure = &f
	}
	s.CanRetryManually = (c.status == StatusFailed || c.status == StatusRetrying) &&
		c.attempt < c.cfg.MaxRetries
	return s
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	c.pending = append(c.pending, c.snapshotLocked())
}

// flush delivers queued snapshots in order. Only one goroutine drains at a
// time; commands issued from inside a subscriber queue their snapshots for
// the active drainer instead of recursing. A panicking subscriber releases
// the drain; undelivered snapshots go out on the next flush.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	done := false
	defer func() {
		if !done {
			c.mu.Lock()
			c.draining = false
			c.mu.Unlock()
		}
	}()
	for len(c.pending) > 0 {
		snap := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]subscriber, len(c.subs))
		copy(subs, c.subs)
		c.mu.Unlock()

		for _, s := range subs {
			s.fn(snap)
		}

		c.mu.Lock()
	}
	c.draining = false
	done = true
	c.mu.Unlock()
}

func (c *Controller) emitLocked(name EventName, kind fault.Kind, err error) {
	c.sink.Record(Event{
		Name:         name,
		Operation:    c.cfg.OperationName,
		ControllerID: c.id,
		Kind:         kind,
		Attempt:      c.attempt,
		DelayMs:      c.delay.Milliseconds(),
		Timestamp:    c.clock.Now(),
		Err:          err,
	})
}

// misuse records a command issued after Dispose. The event is logged at
// DPanic level, which panics under a development logger.
func (c *Controller) misuse(command string) error {
	c.sink.Record(Event{
		Name:         EventMisuse,
		Operation:    c.cfg.OperationName,
		ControllerID: c.id,
		Timestamp:    c.clock.Now(),
		Err:          eris.Wrap(ErrDisposed, command),
	})
	return ErrDisposed
}
