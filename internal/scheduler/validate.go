package scheduler

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/fentz26/stimsched/internal/models"
)

// Violation is one inconsistency found in a Config.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ConfigError carries every violation found by Check.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", models.ErrConfiguration, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match models.ErrConfiguration.
func (e *ConfigError) Unwrap() error {
	return models.ErrConfiguration
}

// Validate runs Check and wraps the violations, if any, in a *ConfigError.
func Validate(cfg *Config) error {
	if v := Check(cfg); len(v) > 0 {
		return &ConfigError{Violations: v}
	}
	return nil
}

// Check returns every inconsistency in cfg. The checks are independent of
// each other, and cfg is not modified.
func Check(cfg *Config) []Violation {
	if cfg == nil {
		return []Violation{{Field: "config", Message: "missing"}}
	}

	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	n := len(cfg.Shown)

	// shown_stimuli
	if n == 0 {
		add("shown_stimuli", "no stimuli to show")
	}
	for i, name := range cfg.Shown {
		if _, ok := cfg.Available[name]; !ok {
			add("shown_stimuli", "stimulus #%d (%q) is not among the available stimuli", i, name)
		} else if isNilItem(cfg.Available[name]) {
			add("shown_stimuli", "stimulus #%d (%q) is nil", i, name)
		}
	}

	// onset_time
	if cfg.OnsetTimes.IsSet() {
		if !cfg.OnsetTimes.IsScalar() && cfg.OnsetTimes.Len() != n {
			add("onset_time", "%d onset times were given for %d shown stimuli", cfg.OnsetTimes.Len(), n)
		}
		for i, t := range cfg.OnsetTimes.Slice() {
			if !finite(t) || t < 0 {
				add("onset_time", "onset time #%d (%v) must be a non-negative number", i, t)
			}
		}
	}

	// duration
	switch {
	case !cfg.Duration.IsSet():
		add("duration", "missing")
	case !cfg.Duration.IsScalar() && cfg.Duration.Len() != n:
		add("duration", "%d durations were given for %d shown stimuli", cfg.Duration.Len(), n)
	}
	for i, d := range cfg.Duration.Slice() {
		if !finite(d) || d <= 0 {
			add("duration", "duration #%d (%v) must be a positive number", i, d)
		}
	}

	// position
	if cfg.Position.IsSet() && !cfg.Position.IsSingle() && cfg.Position.Len() != n {
		add("position", "%d positions were given for %d shown stimuli", cfg.Position.Len(), n)
	}

	// events
	if cfg.OnsetEvent != nil {
		for _, term := range cfg.TerminateEvents {
			if cfg.OnsetEvent.Matches(term) {
				add("onset_event", "%s would also terminate the presentation (%s)", cfg.OnsetEvent, term)
			}
		}
	}

	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isNilItem also catches a nil pointer stored in the interface.
func isNilItem(item Item) bool {
	if item == nil {
		return true
	}
	switch v := reflect.ValueOf(item); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
