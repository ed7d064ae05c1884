// Package stimulus provides the displayable items a scheduler presents.
package stimulus

import (
	"fmt"

	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
)

// Stimulus is a named piece of text that is either on screen or not.
type Stimulus struct {
	Name string
	Text string

	visible bool
}

// New creates a hidden stimulus.
func New(name, text string) *Stimulus {
	return &Stimulus{Name: name, Text: text}
}

// SetVisible shows or hides the stimulus.
func (s *Stimulus) SetVisible(visible bool) {
	s.visible = visible
}

// Visible reports whether the stimulus is on screen.
func (s *Stimulus) Visible() bool {
	return s.visible
}

func (s *Stimulus) String() string {
	if s.visible {
		return s.Name + " (visible)"
	}
	return s.Name
}

// Set is an ordered collection of uniquely named stimuli.
type Set struct {
	order  []*Stimulus
	byName map[string]*Stimulus
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{byName: map[string]*Stimulus{}}
}

// Add appends a stimulus. Names must be non-empty and unique.
func (s *Set) Add(st *Stimulus) error {
	if st == nil || st.Name == "" {
		return fmt.Errorf("stimulus needs a name: %w", models.ErrInvalidArgument)
	}
	if _, ok := s.byName[st.Name]; ok {
		return fmt.Errorf("duplicate stimulus %q: %w", st.Name, models.ErrInvalidArgument)
	}
	s.order = append(s.order, st)
	s.byName[st.Name] = st
	return nil
}

// Get returns the stimulus with the given name, or nil.
func (s *Set) Get(name string) *Stimulus {
	return s.byName[name]
}

// All returns the stimuli in insertion order.
func (s *Set) All() []*Stimulus {
	return append([]*Stimulus(nil), s.order...)
}

// Len returns the number of stimuli.
func (s *Set) Len() int {
	return len(s.order)
}

// HideAll hides every stimulus.
func (s *Set) HideAll() {
	for _, st := range s.order {
		st.SetVisible(false)
	}
}

// Items returns the set in the form scheduler.Config.Available expects.
func (s *Set) Items() map[string]scheduler.Item {
	items := make(map[string]scheduler.Item, len(s.order))
	for _, st := range s.order {
		items[st.Name] = st
	}
	return items
}
