package experiment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/models"
	"gopkg.in/yaml.v3"
)

// attributeSetter applies one textual attribute value to an experiment.
type attributeSetter func(e *Experiment, value string) error

// attributeSetters maps each attribute name accepted by Apply to its
// setter. Numeric values and positions use YAML flow syntax, so "1",
// "[0, 0.5]" and "[[0, 0], [10, 0]]" are all accepted.
var attributeSetters = map[string]attributeSetter{
	"time_base": func(e *Experiment, v string) error {
		base := models.TimeBase(strings.TrimSpace(v))
		if !base.Valid() {
			return fmt.Errorf("unknown time base %q", v)
		}
		e.TimeBase = base
		return nil
	},
	"frame_rate": func(e *Experiment, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		e.FrameRate = f
		return nil
	},
	"shown_stimuli": func(e *Experiment, v string) error {
		e.Trial.ShownStimuli = parseList(v)
		return nil
	},
	"onset_time": func(e *Experiment, v string) error {
		return yaml.Unmarshal([]byte(v), &e.Trial.OnsetTime)
	},
	"duration": func(e *Experiment, v string) error {
		return yaml.Unmarshal([]byte(v), &e.Trial.Duration)
	},
	"position": func(e *Experiment, v string) error {
		return yaml.Unmarshal([]byte(v), &e.Trial.Position)
	},
	"last_stimulus_remains": func(e *Experiment, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		e.Trial.LastStimulusRemains = b
		return nil
	},
	"onset_event": func(e *Experiment, v string) error {
		if _, err := event.Parse(v); err != nil {
			return err
		}
		e.Trial.OnsetEvent = strings.TrimSpace(v)
		return nil
	},
	"init_event": func(e *Experiment, v string) error {
		if _, err := event.Parse(v); err != nil {
			return err
		}
		e.Trial.InitEvent = strings.TrimSpace(v)
		return nil
	},
	"terminate_events": func(e *Experiment, v string) error {
		list := parseList(v)
		for _, text := range list {
			if _, err := event.Parse(text); err != nil {
				return err
			}
		}
		e.Trial.TerminateEvents = list
		return nil
	},
}

// Attributes returns the attribute names Apply accepts, sorted.
func Attributes() []string {
	names := make([]string, 0, len(attributeSetters))
	for name := range attributeSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply sets attributes from their textual values, in name order. Every
// attribute is attempted; the errors of those that failed are joined.
func (e *Experiment) Apply(attrs map[string]string) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		set, ok := attributeSetters[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown attribute %q: %w", name, models.ErrInvalidArgument))
			continue
		}
		if err := set(e, attrs[name]); err != nil {
			errs = append(errs, fmt.Errorf("attribute %s=%q: %v: %w", name, attrs[name], err, models.ErrBadFormat))
		}
	}
	return errors.Join(errs...)
}

// ParseAssignments splits "name=value" pairs.
func ParseAssignments(pairs []string) (map[string]string, error) {
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expecting name=value, got %q: %w", pair, models.ErrBadFormat)
		}
		attrs[name] = value
	}
	return attrs, nil
}

// parseList accepts "[a, b]" or "a, b".
func parseList(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")

	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
