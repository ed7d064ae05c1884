package scheduler

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/fentz26/stimsched/internal/models"
)

// State is the lifecycle stage of a Scheduler. In StateArmed the
// operations are built but the trigger has not occurred yet; StateDrained
// means every operation has executed.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateArmed         State = "armed"
	StateRunning       State = "running"
	StateDrained       State = "drained"
	StateCancelled     State = "cancelled"
)

// CallbackFunc is invoked once per executed operation.
type CallbackFunc func(s *Scheduler, item int, visible bool, scheduledTime float64)

// Scheduler computes and executes the show/hide operations of one trial.
// It is driven either directly (StartShowing and Advance) or by a
// dispatch.Dispatcher, and is not safe for concurrent use.
type Scheduler struct {
	config *Config
	logger *log.Logger

	items     []Item
	visible   []bool
	pending   []Operation
	executed  []Operation
	state     State
	trigger   float64
	callbacks []CallbackFunc

	// instants of an init or terminate event received with an offset,
	// NaN when none is due
	initAt   float64
	cancelAt float64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to trace executed operations.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler for cfg. A nil cfg means DefaultConfig().
func New(cfg *Config, opts ...Option) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Scheduler{
		config: cfg,
		logger:   log.New(io.Discard, "", 0),
		state:    StateUninitialized,
		initAt:   math.NaN(),
		cancelAt: math.NaN(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration the scheduler reads at InitForTrial.
func (s *Scheduler) Config() *Config {
	return s.config
}

// Validate checks the configuration.
func (s *Scheduler) Validate() error {
	return Validate(s.config)
}

// OnVisibilityChange registers a callback. Callbacks run in registration
// order.
func (s *Scheduler) OnVisibilityChange(fn CallbackFunc) {
	if fn != nil {
		s.callbacks = append(s.callbacks, fn)
	}
}

// InitForTrial rebuilds the operations from the configuration and hides
// every stimulus. Any previous operations are discarded.
func (s *Scheduler) InitForTrial() error {
	if err := s.Validate(); err != nil {
		return err
	}

	cfg := s.config
	n := len(cfg.Shown)

	s.items = make([]Item, n)
	s.visible = make([]bool, n)
	for i, name := range cfg.Shown {
		s.items[i] = cfg.Available[name]
		s.items[i].SetVisible(false)
	}

	remains := -1
	if cfg.LastStimulusRemains {
		remains = lastToHide(cfg, n)
	}

	ops := make([]Operation, 0, 2*n)
	for i := 0; i < n; i++ {
		onset := onsetOf(cfg, i)
		ops = append(ops, Operation{Item: i, Kind: Show, Offset: onset, seq: len(ops)})
		if i != remains {
			ops = append(ops, Operation{Item: i, Kind: Hide, Offset: onset + cfg.Duration.At(i), seq: len(ops)})
		}
	}
	for i := range ops {
		ops[i].ScheduledTime = ops[i].Offset
	}
	sortOperations(ops)

	s.pending = ops
	s.executed = nil
	s.trigger = math.NaN()
	s.initAt = math.NaN()
	s.cancelAt = math.NaN()
	s.state = StateArmed

	s.logger.Printf("scheduler armed: %d stimuli, %d operations", n, len(ops))
	return nil
}

// StartShowing fixes the trigger instant at t0 and executes every
// operation due at t0.
func (s *Scheduler) StartShowing(t0 float64) error {
	return s.start(t0, t0)
}

// start fixes the trigger at t0 and advances to now, which may precede t0
// when the trigger is an offset event.
func (s *Scheduler) start(t0, now float64) error {
	if !finite(t0) {
		return fmt.Errorf("trigger time %v: %w", t0, models.ErrInvalidArgument)
	}
	if s.state != StateArmed {
		return fmt.Errorf("cannot start showing while %s: %w", s.state, models.ErrInvalidState)
	}

	s.trigger = t0
	for i := range s.pending {
		s.pending[i].ScheduledTime = t0 + s.pending[i].Offset
	}
	sortOperations(s.pending)
	s.state = StateRunning

	s.logger.Printf("scheduler triggered at %.3f", t0)
	return s.Advance(now)
}

// Advance executes, in scheduled order, every pending operation due at
// or before t. Calling it again with the same or an earlier time does
// nothing.
func (s *Scheduler) Advance(t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("advance to NaN: %w", models.ErrInvalidArgument)
	}
	switch s.state {
	case StateUninitialized:
		return fmt.Errorf("advance before InitForTrial: %w", models.ErrInvalidState)
	case StateRunning:
	default:
		return nil
	}

	// Each operation leaves the pending set before its callbacks run, so
	// a callback that re-enters Advance, Cancel or InitForTrial never
	// sees it again.
	for s.state == StateRunning && len(s.pending) > 0 && s.pending[0].ScheduledTime <= t {
		op := s.pending[0]
		s.pending = s.pending[1:]
		s.fire(op)
	}

	if s.state == StateRunning && len(s.pending) == 0 {
		s.state = StateDrained
	}
	return nil
}

func (s *Scheduler) fire(op Operation) {
	visible := op.Kind == Show
	s.items[op.Item].SetVisible(visible)
	s.visible[op.Item] = visible

	op.Executed = true
	s.executed = append(s.executed, op)

	s.logger.Printf("%s %q at %.3f", op.Kind, s.config.Shown[op.Item], op.ScheduledTime)

	for _, cb := range s.callbacks {
		cb(s, op.Item, visible, op.ScheduledTime)
	}
}

// Cancel discards every pending operation without running callbacks and
// hides every stimulus. Operations already executed are not undone.
func (s *Scheduler) Cancel() {
	if s.state == StateUninitialized {
		return
	}

	dropped := len(s.pending)
	s.pending = nil
	s.cancelAt = math.NaN()
	for i, item := range s.items {
		item.SetVisible(false)
		s.visible[i] = false
	}
	s.state = StateCancelled

	s.logger.Printf("scheduler cancelled, %d pending operations dropped", dropped)
}

// State returns the lifecycle stage.
func (s *Scheduler) State() State {
	return s.state
}

// TriggerTime returns the trigger instant, or NaN before it occurred.
func (s *Scheduler) TriggerTime() float64 {
	if s.state == StateUninitialized {
		return math.NaN()
	}
	return s.trigger
}

// Visibility returns the visibility of each shown stimulus.
func (s *Scheduler) Visibility() []bool {
	return append([]bool(nil), s.visible...)
}

// Pending returns the operations not yet executed, in firing order.
func (s *Scheduler) Pending() []Operation {
	return append([]Operation(nil), s.pending...)
}

// Executed returns the operations executed since InitForTrial, in the
// order they fired.
func (s *Scheduler) Executed() []Operation {
	return append([]Operation(nil), s.executed...)
}

// Len returns the number of stimuli shown this trial.
func (s *Scheduler) Len() int {
	return len(s.items)
}

// Name returns the name of shown stimulus i.
func (s *Scheduler) Name(i int) string {
	return s.config.Shown[i]
}

// Item returns shown stimulus i.
func (s *Scheduler) Item(i int) Item {
	return s.items[i]
}

// Position returns the target position of shown stimulus i, if one was
// configured.
func (s *Scheduler) Position(i int) (Point, bool) {
	if !s.config.Position.IsSet() {
		return Point{}, false
	}
	return s.config.Position.At(i), true
}

func onsetOf(cfg *Config, i int) float64 {
	if !cfg.OnsetTimes.IsSet() {
		return 0
	}
	return cfg.OnsetTimes.At(i)
}

// lastToHide returns the stimulus whose hide time is the latest. Ties go
// to the later stimulus in the shown list.
func lastToHide(cfg *Config, n int) int {
	last, latest := -1, math.Inf(-1)
	for i := 0; i < n; i++ {
		if end := onsetOf(cfg, i) + cfg.Duration.At(i); end >= latest {
			last, latest = i, end
		}
	}
	return last
}
