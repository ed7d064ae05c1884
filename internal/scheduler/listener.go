package scheduler

import (
	"math"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/models"
)

// Interests lists the events the scheduler reacts to when registered
// with a dispatcher.
func (s *Scheduler) Interests() []*event.Event {
	var out []*event.Event
	if s.config.InitEvent != nil {
		out = append(out, s.config.InitEvent)
	}
	if s.config.OnsetEvent != nil {
		out = append(out, s.config.OnsetEvent)
	}
	for _, e := range s.config.TerminateEvents {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// OnEvent initializes, cancels or triggers the presentation. An event's
// own offset delays its effect past the dispatch time: the onset shifts
// the trigger, while a delayed init or cancel is applied by the first
// Update that reaches it.
func (s *Scheduler) OnEvent(e *event.Event, clock models.Clock) error {
	cfg := s.config
	now := clock.Now()

	if initEv := cfg.InitEvent; initEv != nil && e.Matches(initEv) {
		if initEv.Offset() == 0 {
			if err := s.InitForTrial(); err != nil {
				return err
			}
		} else {
			s.initAt = now + initEv.Offset()
		}
	}

	for _, term := range cfg.TerminateEvents {
		if e.Matches(term) {
			if term.Offset() == 0 {
				s.Cancel()
				return nil
			}
			if at := now + term.Offset(); math.IsNaN(s.cancelAt) || at < s.cancelAt {
				s.cancelAt = at
			}
			return nil
		}
	}

	if onset := cfg.OnsetEvent; onset != nil && e.Matches(onset) {
		return s.start(now+onset.Offset(), now)
	}
	return nil
}

// Update applies a delayed init or cancel that has come due and advances
// to the dispatcher's clock. Operations due at or before a delayed
// cancel's instant execute before it. Frames that arrive before the first
// InitForTrial are ignored.
func (s *Scheduler) Update(clock models.Clock) error {
	now := clock.Now()

	if !math.IsNaN(s.initAt) && s.initAt <= now {
		s.initAt = math.NaN()
		if err := s.InitForTrial(); err != nil {
			return err
		}
	}
	if s.state == StateUninitialized {
		return nil
	}

	if at := s.cancelAt; !math.IsNaN(at) && at <= now {
		if err := s.Advance(at); err != nil {
			return err
		}
		s.Cancel()
		return nil
	}
	return s.Advance(now)
}

// Reset cancels the presentation and drops any delayed init.
func (s *Scheduler) Reset(time0 float64) {
	s.initAt = math.NaN()
	s.Cancel()
}
