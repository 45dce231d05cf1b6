// Package fault classifies failures raised by protected operations into the
// small taxonomy used to pick a recovery policy.
package fault

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the classification bucket assigned to a failure.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindRateLimit Kind = "rate_limit"
	KindAuth      Kind = "auth"
	KindServer    Kind = "server"
	KindUnknown   Kind = "unknown"
)

// Kinds lists every Kind in classification priority order.
var Kinds = []Kind{KindNetwork, KindRateLimit, KindAuth, KindServer, KindUnknown}

func (k Kind) String() string { return string(k) }

// Retriable reports whether failures of this kind may be retried
// automatically. Auth failures need the user to reconnect first.
func (k Kind) Retriable() bool {
	return k != KindAuth
}

// ParseKind converts a kind name back into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", eris.Errorf("fault: unknown kind %q", s)
}

// Rule maps any of its substrings to a Kind.
type Rule struct {
	Kind     Kind
	Contains []string
}

// Rules is the ordered classification table. The first rule with a matching
// substring wins, so an "auth ... 500" message is an auth failure.
var Rules = []Rule{
	{Kind: KindNetwork, Contains: []string{"network", "fetch"}},
	{Kind: KindRateLimit, Contains: []string{"rate limit", "429"}},
	{Kind: KindAuth, Contains: []string{"auth", "401", "403"}},
	{Kind: KindServer, Contains: []string{"500", "502", "503"}},
}

// Classify maps err to a Kind by inspecting its lower-cased message against
// Rules. A nil error or one matching no rule is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies Rules to a raw message.
func ClassifyMessage(msg string) Kind {
	// A Caser is stateful and not safe for concurrent use.
	msg = cases.Lower(language.Und).String(msg)
	for _, r := range Rules {
		for _, s := range r.Contains {
			if strings.Contains(msg, s) {
				return r.Kind
			}
		}
	}
	return KindUnknown
}
