// Package scenario replays scripted failure sequences against a recovery
// controller on a manual clock. Scenarios are YAML documents.
package scenario

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/RealSaake/SkillBridge-sub000/internal/config"
)

//go:embed scenarios/*.yaml
var builtin embed.FS

// Duration is a time.Duration written as "1500ms" or "2s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return eris.Wrapf(err, "scenario: line %d: duration", node.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return eris.Wrapf(err, "scenario: line %d: duration", node.Line)
	}
	*d = Duration(v)
	return nil
}

// Scenario is a scripted run.
type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Operation   string     `yaml:"operation"`
	Recovery    *Overrides `yaml:"recovery"`
	Steps       []Step     `yaml:"steps"`
}

// Overrides replaces individual recovery settings. Unset fields keep the
// loaded configuration's value.
type Overrides struct {
	MaxRetries       *int    `yaml:"max_retries"`
	BaseDelayMs      *int    `yaml:"base_delay_ms"`
	RateLimitDelayMs *int    `yaml:"rate_limit_delay_ms"`
	EscapeTarget     *string `yaml:"escape_target"`
}

// Apply returns base with every set field of o replacing its counterpart.
func (o *Overrides) Apply(base config.RecoveryConfig) config.RecoveryConfig {
	if o == nil {
		return base
	}
	if o.MaxRetries != nil {
		base.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelayMs != nil {
		base.BaseDelayMs = *o.BaseDelayMs
	}
	if o.RateLimitDelayMs != nil {
		base.RateLimitDelayMs = *o.RateLimitDelayMs
	}
	if o.EscapeTarget != nil {
		base.EscapeTarget = *o.EscapeTarget
	}
	return base
}

// Step is one command or assertion. Exactly one field is set.
type Step struct {
	Report  string    `yaml:"report,omitempty"`
	Advance *Duration `yaml:"advance,omitempty"`
	Retry   bool      `yaml:"retry,omitempty"`
	Reset   bool      `yaml:"reset,omitempty"`
	Dispose bool      `yaml:"dispose,omitempty"`
	Expect  *Expect   `yaml:"expect,omitempty"`
}

// Expect asserts on the controller after the preceding steps. Unset fields
// are not checked.
type Expect struct {
	Status  string   `yaml:"status"`
	Kind    string   `yaml:"kind"`
	Attempt *int     `yaml:"attempt"`
	Seconds *int     `yaml:"seconds"`
	Actions []string `yaml:"actions"`
	// Error is matched against the previous command's error. "none" asserts
	// that it succeeded.
	Error string `yaml:"error"`
}

// Command names the step's action.
func (s Step) Command() string {
	switch {
	case s.Report != "":
		return "report"
	case s.Advance != nil:
		return "advance"
	case s.Retry:
		return "retry"
	case s.Reset:
		return "reset"
	case s.Dispose:
		return "dispose"
	case s.Expect != nil:
		return "expect"
	}
	return ""
}

func (s Step) fieldsSet() int {
	n := 0
	for _, set := range []bool{s.Report != "", s.Advance != nil, s.Retry, s.Reset, s.Dispose, s.Expect != nil} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks that every step names exactly one command.
func (sc *Scenario) Validate() error {
	var errs []string
	if len(sc.Steps) == 0 {
		errs = append(errs, "steps is required")
	}
	for i, s := range sc.Steps {
		switch n := s.fieldsSet(); {
		case n == 0:
			errs = append(errs, fmt.Sprintf("steps[%d] is empty", i))
		case n > 1:
			errs = append(errs, fmt.Sprintf("steps[%d] sets %d commands", i, n))
		}
		if s.Advance != nil && *s.Advance < 0 {
			errs = append(errs, fmt.Sprintf("steps[%d].advance must be >= 0", i))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("scenario %q: %s", sc.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, eris.Wrap(err, "scenario: decode")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads a scenario from a file, or from the built-in set when path
// names one of Builtins().
func Load(p string) (*Scenario, error) {
	if data, err := builtin.ReadFile(path.Join("scenarios", p+".yaml")); err == nil {
		return Parse(data)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", p)
	}
	return Parse(data)
}

// Builtins lists the names of the embedded scenarios.
func Builtins() []string {
	entries, err := builtin.ReadDir("scenarios")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
