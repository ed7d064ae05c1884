// Package event defines named, hierarchical instants in trial time.
package event

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/fentz26/stimsched/internal/models"
)

// Event is a named point in trial time, optionally offset from the moment
// the named instant occurs. An Event may extend another one; a listener
// interested in the parent also receives the child.
type Event struct {
	id       string
	offset   float64
	extends  *Event
	extended bool
}

// New creates an event. The parent, if any, is shared and never owned.
func New(id string, offset float64, extends *Event) (*Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id must not be empty: %w", models.ErrInvalidArgument)
	}
	if err := checkOffset(id, offset); err != nil {
		return nil, err
	}

	e := &Event{id: id, offset: offset, extends: extends}
	if extends != nil {
		extends.extended = true
	}
	return e, nil
}

// MustNew is like New but panics on error. Intended for package-level
// event declarations.
func MustNew(id string, extends *Event) *Event {
	e, err := New(id, 0, extends)
	if err != nil {
		panic(err)
	}
	return e
}

func checkOffset(id string, offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
		return fmt.Errorf("invalid offset (%v) for event %s, only non-negative offsets are acceptable: %w",
			offset, id, models.ErrInvalidArgument)
	}
	return nil
}

// ID returns the event identifier.
func (e *Event) ID() string { return e.id }

// Offset returns the delay in seconds relative to when the named
// instant occurs.
func (e *Event) Offset() float64 { return e.offset }

// Extends returns the event this one extends, or nil.
func (e *Event) Extends() *Event { return e.extends }

// IsExtended reports whether another event was built to extend this one.
func (e *Event) IsExtended() bool { return e.extended }

// Hierarchy returns the event followed by every event it extends, up to
// the root.
func (e *Event) Hierarchy() []*Event {
	var chain []*Event
	for cur := e; cur != nil; cur = cur.extends {
		chain = append(chain, cur)
	}
	return chain
}

// Plus returns a new event rhs seconds after e. The receiver is unchanged.
func (e *Event) Plus(rhs float64) (*Event, error) {
	if err := checkOffset(e.id, rhs); err != nil {
		return nil, err
	}
	return &Event{id: e.id, offset: e.offset + rhs, extends: e.extends}, nil
}

// Matches reports whether e, or any event it extends, carries the id of
// interest. Offsets are not compared: the listener applies its own.
func (e *Event) Matches(interest *Event) bool {
	if e == nil || interest == nil {
		return false
	}
	for _, h := range e.Hierarchy() {
		if h.id == interest.id {
			return true
		}
	}
	return false
}

// Equal reports whether both events denote the same instant.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.id == other.id && e.offset == other.offset
}

// Less orders events by id, then by offset.
func (e *Event) Less(other *Event) bool {
	if e.id != other.id {
		return e.id < other.id
	}
	return e.offset < other.offset
}

func (e *Event) String() string {
	if e.offset == 0 {
		return e.id
	}
	return fmt.Sprintf("%s + %.3gsec", e.id, e.offset)
}

var (
	noneRe  = regexp.MustCompile(`(?i)^\s*none\s*$`)
	eventRe = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*(\+\s*(\d+|\d*\.\d+))?\s*$`)
)

// Parse reads "<id>" or "<id> + <seconds>". The text "none" yields a nil
// event and no error.
func Parse(text string) (*Event, error) {
	if noneRe.MatchString(text) {
		return nil, nil
	}

	m := eventRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("invalid event format (%q), expecting event_id or event_id+offset: %w",
			text, models.ErrBadFormat)
	}

	if m[2] == "" {
		return New(m[1], 0, parentOf(m[1]))
	}
	offset, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid event offset %q: %w", m[3], models.ErrBadFormat)
	}
	return New(m[1], offset, parentOf(m[1]))
}
