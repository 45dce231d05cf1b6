package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/RealSaake/SkillBridge-sub000/internal/clock"
	"github.com/RealSaake/SkillBridge-sub000/internal/config"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// Epoch is the manual clock's start time.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is one executed step.
type Entry struct {
	Step    int
	Command string
	Arg     string
	Elapsed time.Duration
	Err     error
	// Snapshots are the transitions published while the step ran.
	Snapshots []recovery.Snapshot
	// After is the controller state once the step finished.
	After recovery.Snapshot
}

// Result is the outcome of a run.
type Result struct {
	Scenario *Scenario
	Entries  []Entry
	Events   []recovery.Event
	// Failures lists unmet expectations.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes sc against a fresh controller. base supplies every recovery
// setting the scenario does not override. sink, if non-nil, also receives
// every event.
func Run(sc *Scenario, base config.RecoveryConfig, sink recovery.Sink) (*Result, error) {
	rc := sc.Recovery.Apply(base)
	op := sc.Operation
	if op == "" {
		op = sc.Name
	}

	m := clock.NewManual(Epoch)
	res := &Result{Scenario: sc}
	record := recovery.SinkFunc(func(e recovery.Event) { res.Events = append(res.Events, e) })

	ctrl, err := recovery.New(rc.ForOperation(op),
		recovery.WithClock(m),
		recovery.WithSink(recovery.MultiSink{record, sink}),
		recovery.WithID("scenario-"+sc.Name),
	)
	if err != nil {
		return nil, err
	}
	defer ctrl.Dispose()

	var published []recovery.Snapshot
	if _, err := ctrl.Subscribe(func(s recovery.Snapshot) { published = append(published, s) }); err != nil {
		return nil, err
	}

	var lastErr error
	for i, step := range sc.Steps {
		published = nil
		entry := Entry{Step: i, Command: step.Command()}

		switch entry.Command {
		case "report":
			entry.Arg = step.Report
			lastErr = ctrl.Report(errors.New(step.Report))
		case "advance":
			d := time.Duration(*step.Advance)
			entry.Arg = d.String()
			m.Advance(d)
			lastErr = nil
		case "retry":
			lastErr = ctrl.RetryNow()
		case "reset":
			lastErr = ctrl.Reset()
		case "dispose":
			ctrl.Dispose()
			lastErr = nil
		case "expect":
			res.Failures = append(res.Failures, check(i, *step.Expect, ctrl, lastErr)...)
		}

		if entry.Command != "expect" {
			entry.Err = lastErr
		}
		entry.Elapsed = m.Now().Sub(Epoch)
		entry.Snapshots = published
		entry.After = ctrl.Snapshot()
		res.Entries = append(res.Entries, entry)
	}

	return res, nil
}

func check(step int, want Expect, ctrl *recovery.Controller, lastErr error) []string {
	s := ctrl.Snapshot()
	var fails []string
	fail := func(format string, args ...any) {
		fails = append(fails, fmt.Sprintf("steps[%d]: ", step)+fmt.Sprintf(format, args...))
	}

	if want.Status != "" && want.Status != s.Status.String() {
		fail("status = %s, want %s", s.Status, want.Status)
	}
	if want.Kind != "" && want.Kind != string(s.Kind()) {
		fail("kind = %q, want %q", s.Kind(), want.Kind)
	}
	if want.Attempt != nil && *want.Attempt != s.Attempt {
		fail("attempt = %d, want %d", s.Attempt, *want.Attempt)
	}
	if want.Seconds != nil && *want.Seconds != s.SecondsUntilRetry {
		fail("seconds = %d, want %d", s.SecondsUntilRetry, *want.Seconds)
	}
	if want.Actions != nil {
		got := make([]string, 0, 4)
		for _, a := range ctrl.Actions() {
			got = append(got, string(a.Kind))
		}
		if !slices.Equal(got, want.Actions) {
			fail("actions = %v, want %v", got, want.Actions)
		}
	}
	switch {
	case want.Error == "":
	case want.Error == "none":
		if lastErr != nil {
			fail("error = %q, want none", lastErr)
		}
	case lastErr == nil:
		fail("error = none, want %q", want.Error)
	case !strings.Contains(lastErr.Error(), want.Error):
		fail("error = %q, want it to contain %q", lastErr, want.Error)
	}
	return fails
}
