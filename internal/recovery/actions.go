package recovery

import (
	"fmt"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

// ActionKind tags an Action descriptor. The host interprets it; the
// controller never performs navigation itself.
type ActionKind string

const (
	// ActionRetrying is the disabled countdown indicator.
	ActionRetrying ActionKind = "retrying"
	// ActionRetry invokes Controller.RetryNow.
	ActionRetry ActionKind = "retry"
	// ActionReconnect asks the host to re-establish credentials.
	ActionReconnect ActionKind = "reconnect"
	// ActionNavigate asks the host to leave for Target.
	ActionNavigate ActionKind = "navigate"
)

// Action is a host-rendered control derived from a Snapshot.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Label    string     `json:"label"`
	Target   string     `json:"target,omitempty"`
	Disabled bool       `json:"disabled,omitempty"`
	Seconds  int        `json:"seconds,omitempty"`
}

// DeriveActions computes the action list for s. The escape action is always
// last and always present.
func DeriveActions(s Snapshot, escapeTarget string) []Action {
	var actions []Action

	if s.Status == StatusRetrying {
		actions = append(actions, Action{
			Kind:     ActionRetrying,
			Label:    retryingLabel(s.SecondsUntilRetry),
			Disabled: true,
			Seconds:  s.SecondsUntilRetry,
		})
	}
	if s.Status == StatusFailed && s.Attempt < s.MaxRetries {
		actions = append(actions, Action{Kind: ActionRetry, Label: "Try Again"})
	}
	if s.Kind() == fault.KindAuth {
		actions = append(actions, Action{Kind: ActionReconnect, Label: "Reconnect"})
	}

	return append(actions, Action{
		Kind:   ActionNavigate,
		Label:  "Return to Dashboard",
		Target: escapeTarget,
	})
}

func retryingLabel(seconds int) string {
	if seconds == 1 {
		return "Retrying in 1 second"
	}
	return fmt.Sprintf("Retrying in %d seconds", seconds)
}

// Message returns a human-readable explanation of the snapshot's failure.
func Message(s Snapshot) string {
	if s.Failure == nil {
		return ""
	}
	var msg string
	switch s.Failure.Kind {
	case fault.KindNetwork:
		msg = "We couldn't reach the server. Check your connection."
	case fault.KindRateLimit:
		msg = "Too many requests. Please wait before trying again."
	case fault.KindAuth:
		msg = "Your session needs to be reconnected."
	case fault.KindServer:
		msg = "The service is having trouble right now."
	default:
		msg = "Something went wrong."
	}
	if s.Operation != "" {
		msg = fmt.Sprintf("%s failed. %s", s.Operation, msg)
	}
	if s.Status == StatusExhausted {
		msg += " Automatic retries are exhausted."
	}
	return msg
}
