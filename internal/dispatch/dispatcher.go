// Package dispatch delivers trial events and frame ticks to listeners.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/models"
)

// Resetter is notified when the dispatcher is reset for a new trial.
type Resetter interface {
	Reset(time0 float64)
}

// FrameUpdater is polled once per frame.
type FrameUpdater interface {
	Update(clock models.Clock) error
}

// EventHandler receives the dispatched events it declares interest in.
type EventHandler interface {
	Interests() []*event.Event
	OnEvent(e *event.Event, clock models.Clock) error
}

// listener is one registration. Capabilities are resolved once, at
// Register time.
type listener struct {
	value    any
	resetter Resetter
	updater  FrameUpdater
	handler  EventHandler
}

// Dispatcher broadcasts events and frames to its listeners in
// registration order. It is not safe for concurrent use; one
// presentation loop drives it.
type Dispatcher struct {
	listeners []listener
	base      models.TimeBase
	logger    *log.Logger

	// last value seen on the configured time base since the last Reset
	watermark float64
	last      models.Clock
	seen      bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeBase selects the clock handed to listeners as Clock.Now().
func WithTimeBase(base models.TimeBase) Option {
	return func(d *Dispatcher) {
		d.base = base
	}
}

// WithLogger sets the logger for dispatch tracing.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher. The default time base is the session clock.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		base:      models.TimeBaseSession,
		logger:    log.New(io.Discard, "", 0),
		watermark: math.Inf(-1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TimeBase returns the configured time base.
func (d *Dispatcher) TimeBase() models.TimeBase {
	return d.base
}

// Register adds a listener. It must implement at least one of Resetter,
// FrameUpdater or EventHandler.
func (d *Dispatcher) Register(l any) error {
	if l == nil {
		return fmt.Errorf("nil listener: %w", models.ErrInvalidArgument)
	}

	entry := listener{value: l}
	entry.resetter, _ = l.(Resetter)
	entry.updater, _ = l.(FrameUpdater)
	entry.handler, _ = l.(EventHandler)

	if entry.resetter == nil && entry.updater == nil && entry.handler == nil {
		return fmt.Errorf("listener %T supports neither reset, frame updates nor events: %w",
			l, models.ErrInvalidArgument)
	}

	d.listeners = append(d.listeners, entry)
	return nil
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	return len(d.listeners)
}

// Reset notifies every Resetter and starts a new trial's time watermark.
func (d *Dispatcher) Reset(time0 float64) {
	d.watermark = math.Inf(-1)
	d.last = models.Clock{}
	d.seen = false
	for _, l := range d.listeners {
		if l.resetter != nil {
			l.resetter.Reset(time0)
		}
	}
}

// DispatchEvent delivers e to every handler with a matching interest.
func (d *Dispatcher) DispatchEvent(ctx context.Context, e *event.Event, timeInTrial, timeInSession float64) error {
	if e == nil {
		return fmt.Errorf("nil event: %w", models.ErrInvalidArgument)
	}
	clock, err := d.advanceClock(timeInTrial, timeInSession)
	if err != nil {
		return err
	}

	d.logger.Printf("dispatch %s at trial=%.3f session=%.3f", e, timeInTrial, timeInSession)

	var errs []error
	for _, l := range d.listeners {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if l.handler == nil || !interested(l.handler, e) {
			continue
		}
		if err := l.handler.OnEvent(e, clock); err != nil {
			errs = append(errs, fmt.Errorf("%T on %s: %w", l.value, e, err))
		}
	}
	return errors.Join(errs...)
}

// OnFrame delivers a time advance to every FrameUpdater.
func (d *Dispatcher) OnFrame(ctx context.Context, timeInTrial, timeInSession float64) error {
	clock, err := d.advanceClock(timeInTrial, timeInSession)
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range d.listeners {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if l.updater == nil {
			continue
		}
		if err := l.updater.Update(clock); err != nil {
			errs = append(errs, fmt.Errorf("%T update: %w", l.value, err))
		}
	}
	return errors.Join(errs...)
}

// Last returns the clock of the most recent event or frame accepted since
// the last Reset. ok is false when nothing was accepted yet.
func (d *Dispatcher) Last() (clock models.Clock, ok bool) {
	return d.last, d.seen
}

// Accepts reports whether an event or frame at the given times would be
// delivered, without delivering anything.
func (d *Dispatcher) Accepts(timeInTrial, timeInSession float64) error {
	_, err := d.checkClock(timeInTrial, timeInSession)
	return err
}

func (d *Dispatcher) checkClock(timeInTrial, timeInSession float64) (models.Clock, error) {
	clock := models.Clock{InTrial: timeInTrial, InSession: timeInSession, Base: d.base}
	now := clock.Now()
	if math.IsNaN(now) {
		return clock, fmt.Errorf("time is NaN: %w", models.ErrInvalidArgument)
	}
	if now < d.watermark {
		return clock, fmt.Errorf("%s time moved backward (%v < %v): %w",
			d.base, now, d.watermark, models.ErrInvalidArgument)
	}
	return clock, nil
}

func (d *Dispatcher) advanceClock(timeInTrial, timeInSession float64) (models.Clock, error) {
	clock, err := d.checkClock(timeInTrial, timeInSession)
	if err != nil {
		return clock, err
	}
	d.watermark = clock.Now()
	d.last = clock
	d.seen = true
	return clock, nil
}

func interested(h EventHandler, e *event.Event) bool {
	for _, interest := range h.Interests() {
		if e.Matches(interest) {
			return true
		}
	}
	return false
}
