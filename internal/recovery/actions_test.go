package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

func TestDeriveActions(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want []ActionKind
	}{
		{
			name: "idle offers only escape",
			snap: Snapshot{Status: StatusIdle, MaxRetries: 3},
			want: []ActionKind{ActionNavigate},
		},
		{
			name: "retrying shows disabled countdown",
			snap: Snapshot{Status: StatusRetrying, MaxRetries: 3, SecondsUntilRetry: 4,
				Failure: &Failure{Kind: fault.KindNetwork}},
			want: []ActionKind{ActionRetrying, ActionNavigate},
		},
		{
			name: "failed with budget offers try again",
			snap: Snapshot{Status: StatusFailed, MaxRetries: 3, Attempt: 2,
				Failure: &Failure{Kind: fault.KindServer}},
			want: []ActionKind{ActionRetry, ActionNavigate},
		},
		{
			name: "auth failure offers reconnect",
			snap: Snapshot{Status: StatusFailed, MaxRetries: 3,
				Failure: &Failure{Kind: fault.KindAuth}},
			want: []ActionKind{ActionRetry, ActionReconnect, ActionNavigate},
		},
		{
			name: "exhausted auth still offers reconnect",
			snap: Snapshot{Status: StatusExhausted, MaxRetries: 3, Attempt: 3,
				Failure: &Failure{Kind: fault.KindAuth}},
			want: []ActionKind{ActionReconnect, ActionNavigate},
		},
		{
			name: "exhausted offers only escape",
			snap: Snapshot{Status: StatusExhausted, MaxRetries: 3, Attempt: 3,
				Failure: &Failure{Kind: fault.KindNetwork}},
			want: []ActionKind{ActionNavigate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionKinds(DeriveActions(tt.snap, "/dashboard")))
		})
	}
}

func TestDeriveActions_Descriptors(t *testing.T) {
	actions := DeriveActions(Snapshot{Status: StatusRetrying, SecondsUntilRetry: 2, MaxRetries: 3}, "/home")
	require.Len(t, actions, 2)

	assert.Equal(t, Action{
		Kind:     ActionRetrying,
		Label:    "Retrying in 2 seconds",
		Disabled: true,
		Seconds:  2,
	}, actions[0])
	assert.Equal(t, Action{Kind: ActionNavigate, Label: "Return to Dashboard", Target: "/home"}, actions[1])

	actions = DeriveActions(Snapshot{Status: StatusRetrying, SecondsUntilRetry: 1, MaxRetries: 3}, "/home")
	assert.Equal(t, "Retrying in 1 second", actions[0].Label)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(Snapshot{}))

	s := Snapshot{Operation: "Career insights", Status: StatusRetrying,
		Failure: &Failure{Kind: fault.KindRateLimit}}
	assert.Equal(t, "Career insights failed. Too many requests. Please wait before trying again.", Message(s))

	s = Snapshot{Status: StatusExhausted, Failure: &Failure{Kind: fault.KindUnknown}}
	assert.Equal(t, "Something went wrong. Automatic retries are exhausted.", Message(s))
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{Operation: "quiz", Status: StatusRetrying, Attempt: 1, MaxRetries: 3,
		SecondsUntilRetry: 2, Failure: &Failure{Kind: fault.KindNetwork}}
	assert.Equal(t, "quiz: retrying (network) attempt 1/3, retry in 2s", s.String())

	s = Snapshot{Operation: "quiz", Status: StatusIdle, MaxRetries: 3}
	assert.Equal(t, "quiz: idle attempt 0/3", s.String())
}

func TestStatus_MarshalText(t *testing.T) {
	for status, want := range map[Status]string{
		StatusIdle:      "idle",
		StatusFailed:    "failed",
		StatusRetrying:  "retrying",
		StatusExhausted: "exhausted",
		Status(42):      "unknown",
	} {
		b, err := status.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
}
