package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

// Status is the controller's state machine position.
type Status int

const (
	// StatusIdle means no failure is on record, or a retry handed control
	// back to the host.
	StatusIdle Status = iota
	// StatusFailed means a failure was classified and no automatic retry is
	// pending.
	StatusFailed
	// StatusRetrying means a delay timer is counting down to an automatic retry.
	StatusRetrying
	// StatusExhausted is terminal until Reset.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFailed:
		return "failed"
	case StatusRetrying:
		return "retrying"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Failure is a classified error. Err is the original error, kept verbatim.
type Failure struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

// Snapshot is the immutable view of a controller handed to its host after
// every transition.
type Snapshot struct {
	ControllerID      string    `json:"controller_id"`
	Operation         string    `json:"operation"`
	Status            Status    `json:"status"`
	Failure           *Failure  `json:"failure"`
	Attempt           int       `json:"attempt"`
	MaxRetries        int       `json:"max_retries"`
	SecondsUntilRetry int       `json:"seconds_until_retry"`
	CanRetryManually  bool      `json:"can_retry_manually"`
	DelayMs           int64     `json:"delay_ms"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Kind returns the failure kind, or "" when no failure is on record.
func (s Snapshot) Kind() fault.Kind {
	if s.Failure == nil {
		return ""
	}
	return s.Failure.Kind
}

// String renders a one-line summary for terminals and logs.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", s.Operation, s.Status)
	if s.Failure != nil {
		fmt.Fprintf(&b, " (%s)", s.Failure.Kind)
	}
	fmt.Fprintf(&b, " attempt %d/%d", s.Attempt, s.MaxRetries)
	if s.SecondsUntilRetry > 0 {
		fmt.Fprintf(&b, ", retry in %ds", s.SecondsUntilRetry)
	}
	return b.String()
}
