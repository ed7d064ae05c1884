// Package scheduler shows and hides stimuli at scheduled instants of a trial.
package scheduler

import (
	"fmt"

	"github.com/fentz26/stimsched/internal/event"
	"gopkg.in/yaml.v3"
)

// Item is a stimulus whose visibility the scheduler controls. The
// scheduler never calls anything else on it.
type Item interface {
	SetVisible(visible bool)
}

// Config defines what a scheduler shows in one trial.
type Config struct {
	// Available maps stimulus names to the stimuli. The stimuli are owned
	// by the caller.
	Available map[string]Item
	// Shown lists, in order, the names of the stimuli presented this trial.
	Shown []string
	// OnsetTimes holds, per shown stimulus, its delay from the trigger
	// instant. Unset means every stimulus appears at the trigger.
	OnsetTimes Values
	// Duration is how long each stimulus stays visible: one value for
	// all stimuli, or one per shown stimulus.
	Duration Values
	// Position is the target on-screen position: unset, one point for all
	// stimuli, or one per shown stimulus.
	Position Points
	// LastStimulusRemains keeps the stimulus that would hide last visible.
	LastStimulusRemains bool
	// OnsetEvent triggers StartShowing when dispatched; its offset delays
	// the trigger. Nil means the caller drives StartShowing directly.
	OnsetEvent *event.Event
	// InitEvent triggers InitForTrial when dispatched.
	InitEvent *event.Event
	// TerminateEvents cancel the presentation when dispatched.
	TerminateEvents []*event.Event
}

// DefaultConfig returns a configuration with the standard trial events and
// no stimuli.
func DefaultConfig() *Config {
	return &Config{
		Available:       map[string]Item{},
		InitEvent:       event.TrialInitialized,
		TerminateEvents: []*event.Event{event.TrialEnded},
	}
}

// AddStimulus makes a stimulus available under name.
func (c *Config) AddStimulus(name string, item Item) {
	if c.Available == nil {
		c.Available = map[string]Item{}
	}
	c.Available[name] = item
}

// Values is either a single number applied to every stimulus or one
// number per stimulus.
type Values struct {
	values []float64
	scalar bool
}

// Scalar returns a value shared by all stimuli.
func Scalar(v float64) Values {
	return Values{values: []float64{v}, scalar: true}
}

// List returns one value per stimulus.
func List(v ...float64) Values {
	return Values{values: append([]float64(nil), v...)}
}

// IsSet reports whether any value was given.
func (v Values) IsSet() bool { return len(v.values) > 0 }

// IsZero reports whether no value was given, so that omitempty drops it.
func (v Values) IsZero() bool { return !v.IsSet() }

// IsScalar reports whether a single shared value was given.
func (v Values) IsScalar() bool { return v.scalar }

// Len returns the number of values given.
func (v Values) Len() int { return len(v.values) }

// At returns the value for stimulus i.
func (v Values) At(i int) float64 {
	if v.scalar {
		return v.values[0]
	}
	return v.values[i]
}

// Slice returns a copy of the values given.
func (v Values) Slice() []float64 {
	return append([]float64(nil), v.values...)
}

func (v Values) String() string {
	switch {
	case !v.IsSet():
		return "none"
	case v.scalar:
		return fmt.Sprint(v.values[0])
	default:
		return fmt.Sprint(v.values)
	}
}

// UnmarshalYAML accepts a number, a list of numbers, or null.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*v = Values{}
			return nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Scalar(f)
	case yaml.SequenceNode:
		var fs []float64
		if err := node.Decode(&fs); err != nil {
			return err
		}
		*v = List(fs...)
	default:
		return fmt.Errorf("line %d: expecting a number or a list of numbers", node.Line)
	}
	return nil
}

// MarshalYAML writes the form that was given.
func (v Values) MarshalYAML() (interface{}, error) {
	switch {
	case !v.IsSet():
		return nil, nil
	case v.scalar:
		return v.values[0], nil
	default:
		return v.values, nil
	}
}

// Point is an (x, y) screen coordinate.
type Point struct {
	X float64
	Y float64
}

// Points is either a single position for every stimulus or one position
// per stimulus.
type Points struct {
	points []Point
	single bool
}

// SinglePoint returns a position shared by all stimuli.
func SinglePoint(x, y float64) Points {
	return Points{points: []Point{{X: x, Y: y}}, single: true}
}

// PointList returns one position per stimulus.
func PointList(p ...Point) Points {
	return Points{points: append([]Point(nil), p...)}
}

// IsSet reports whether any position was given.
func (p Points) IsSet() bool { return len(p.points) > 0 }

// IsZero reports whether no position was given.
func (p Points) IsZero() bool { return !p.IsSet() }

// IsSingle reports whether one shared position was given.
func (p Points) IsSingle() bool { return p.single }

// Len returns the number of positions given.
func (p Points) Len() int { return len(p.points) }

// At returns the position of stimulus i.
func (p Points) At(i int) Point {
	if p.single {
		return p.points[0]
	}
	return p.points[i]
}

// UnmarshalYAML accepts [x, y], a list of [x, y] pairs, or null.
func (p *Points) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*p = Points{}
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expecting [x, y] or a list of [x, y]", node.Line)
	}

	if len(node.Content) > 0 && node.Content[0].Kind == yaml.ScalarNode {
		var xy []float64
		if err := node.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("line %d: a position needs exactly 2 coordinates, got %d", node.Line, len(xy))
		}
		*p = SinglePoint(xy[0], xy[1])
		return nil
	}

	var pairs [][]float64
	if err := node.Decode(&pairs); err != nil {
		return err
	}
	points := make([]Point, 0, len(pairs))
	for i, xy := range pairs {
		if len(xy) != 2 {
			return fmt.Errorf("line %d: position %d needs exactly 2 coordinates, got %d", node.Line, i, len(xy))
		}
		points = append(points, Point{X: xy[0], Y: xy[1]})
	}
	*p = PointList(points...)
	return nil
}

// MarshalYAML writes the form that was given.
func (p Points) MarshalYAML() (interface{}, error) {
	switch {
	case !p.IsSet():
		return nil, nil
	case p.single:
		return []float64{p.points[0].X, p.points[0].Y}, nil
	default:
		pairs := make([][]float64, len(p.points))
		for i, pt := range p.points {
			pairs[i] = []float64{pt.X, pt.Y}
		}
		return pairs, nil
	}
}
