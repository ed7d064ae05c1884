// Package session runs the trials of one experiment session: it wires the
// scheduler, the dispatcher, the results log and the trajectory tracker,
// and moves them through each trial's lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/fentz26/stimsched/internal/audit"
	"github.com/fentz26/stimsched/internal/dispatch"
	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/experiment"
	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/fentz26/stimsched/internal/stimulus"
	"github.com/fentz26/stimsched/internal/trajectory"
)

// ErrNoTrial is returned when an operation needs an open trial.
var ErrNoTrial = fmt.Errorf("no trial in progress: %w", models.ErrInvalidState)

// Options holds the optional collaborators of a Service.
type Options struct {
	// Recorder, if set, logs every trial to the results database.
	Recorder *audit.Recorder
	// Tracker, if set, records pointer samples and saves them when each
	// trial ends. Its output file must already be initialized.
	Tracker *trajectory.Tracker
	Logger  *log.Logger
}

// Service drives the trials of a session.
type Service struct {
	exp        *experiment.Experiment
	stimuli    *stimulus.Set
	config     *scheduler.Config
	scheduler  *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	recorder   *audit.Recorder
	tracker    *trajectory.Tracker
	logger     *log.Logger

	number int
	open   bool
}

// NewService validates exp and builds the components of a session.
func NewService(exp *experiment.Experiment, opts Options) (*Service, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	stimuli, err := exp.NewStimuli()
	if err != nil {
		return nil, err
	}
	cfg, err := exp.Build(stimuli.Items())
	if err != nil {
		return nil, err
	}

	s := &Service{
		exp:        exp,
		stimuli:    stimuli,
		config:     cfg,
		scheduler:  scheduler.New(cfg, scheduler.WithLogger(logger)),
		dispatcher: dispatch.New(dispatch.WithTimeBase(exp.TimeBase), dispatch.WithLogger(logger)),
		recorder:   opts.Recorder,
		tracker:    opts.Tracker,
		logger:     logger,
	}

	if err := s.dispatcher.Register(s.scheduler); err != nil {
		return nil, err
	}
	if s.tracker != nil {
		if err := s.dispatcher.Register(s.tracker); err != nil {
			return nil, err
		}
	}
	if s.recorder != nil {
		s.recorder.Attach(s.scheduler)
	}
	return s, nil
}

// Scheduler returns the session's scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Stimuli returns the session's stimuli.
func (s *Service) Stimuli() *stimulus.Set { return s.stimuli }

// Experiment returns the experiment the session runs.
func (s *Service) Experiment() *experiment.Experiment { return s.exp }

// Number returns the number of the current or last trial, 0 before the
// first one.
func (s *Service) Number() int { return s.number }

// Open reports whether a trial is in progress.
func (s *Service) Open() bool { return s.open }

// BeginTrial ends any open trial as cancelled, resets the components and
// dispatches TRIAL_INITIALIZED. The open trial is ended at the last time
// the dispatcher saw, since the given times may belong to the new
// trial's clock.
func (s *Service) BeginTrial(ctx context.Context, timeInTrial, timeInSession float64) error {
	if s.open {
		endTrial, endSession := timeInTrial, timeInSession
		if last, ok := s.dispatcher.Last(); ok {
			endTrial, endSession = last.InTrial, last.InSession
		}
		if err := s.EndTrial(ctx, models.TrialOutcomeCancelled, endTrial, endSession); err != nil {
			s.dispatcher.Reset(timeInTrial)
			return err
		}
	}

	s.dispatcher.Reset(timeInTrial)
	if s.recorder != nil {
		if _, err := s.recorder.BeginTrial(s.config); err != nil {
			return err
		}
	}
	if s.tracker != nil {
		s.tracker.SetEnabled(true)
	}

	s.number++
	s.open = true
	s.logger.Printf("trial %d initialized", s.number)

	return s.dispatcher.DispatchEvent(ctx, event.TrialInitialized, timeInTrial, timeInSession)
}

// StartTrial dispatches TRIAL_STARTED. Without an onset event the
// scheduler is started directly at the current time.
func (s *Service) StartTrial(ctx context.Context, timeInTrial, timeInSession float64) error {
	if !s.open {
		return ErrNoTrial
	}
	if err := s.dispatcher.DispatchEvent(ctx, event.TrialStarted, timeInTrial, timeInSession); err != nil {
		return err
	}
	if s.config.OnsetEvent == nil {
		now := models.Clock{InTrial: timeInTrial, InSession: timeInSession, Base: s.exp.TimeBase}.Now()
		return s.scheduler.StartShowing(now)
	}
	return nil
}

// Frame advances every component to the given time.
func (s *Service) Frame(ctx context.Context, timeInTrial, timeInSession float64) error {
	return s.dispatcher.OnFrame(ctx, timeInTrial, timeInSession)
}

// Sample feeds a pointer position to the tracker, if any.
func (s *Service) Sample(x, y, timeInTrial float64) error {
	if s.tracker == nil || !s.open {
		return nil
	}
	return s.tracker.UpdateXYT(x, y, timeInTrial)
}

// EndTrial dispatches the event matching outcome and closes the trial in
// the results log and the trajectory file.
func (s *Service) EndTrial(ctx context.Context, outcome models.TrialOutcome, timeInTrial, timeInSession float64) error {
	if !s.open {
		return ErrNoTrial
	}
	// A rejected clock keeps the trial open, so the caller can retry.
	if err := s.dispatcher.Accepts(timeInTrial, timeInSession); err != nil {
		return err
	}
	s.open = false

	var errs []error
	if err := s.dispatcher.DispatchEvent(ctx, endEvent(outcome), timeInTrial, timeInSession); err != nil {
		errs = append(errs, err)
	}
	if s.recorder != nil {
		if err := s.recorder.EndTrial(outcome); err != nil {
			errs = append(errs, err)
		}
	}
	if s.tracker != nil {
		s.tracker.SetEnabled(false)
		if _, err := s.tracker.SaveToFile(s.number); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Printf("trial %d %s", s.number, outcome)
	return errors.Join(errs...)
}

func endEvent(outcome models.TrialOutcome) *event.Event {
	switch outcome {
	case models.TrialOutcomeSucceeded:
		return event.TrialSucceeded
	case models.TrialOutcomeFailed:
		return event.TrialFailed
	default:
		return event.TrialEnded
	}
}
