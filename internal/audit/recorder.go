// Package audit records the executed operations of each trial in the
// results log.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/fentz26/stimsched/internal/store"
)

// Recorder buffers the transitions of the running trial and writes them
// when the trial ends.
type Recorder struct {
	store     *store.Store
	sessionID string
	logger    *log.Logger

	trial   *models.Trial
	pending []models.Transition
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used to trace trial boundaries.
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a recorder that logs trials under sessionID.
func NewRecorder(s *store.Store, sessionID string, opts ...Option) *Recorder {
	r := &Recorder{
		store:     s,
		sessionID: sessionID,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers the recorder as a visibility callback of s.
func (r *Recorder) Attach(s *scheduler.Scheduler) {
	s.OnVisibilityChange(r.record)
}

// BeginTrial opens a trial row for cfg. A trial still open is ended as
// cancelled first.
func (r *Recorder) BeginTrial(cfg *scheduler.Config) (*models.Trial, error) {
	if r.trial != nil {
		if err := r.EndTrial(models.TrialOutcomeCancelled); err != nil {
			return nil, err
		}
	}

	trial, err := r.store.StartTrial(r.sessionID, HashConfig(cfg))
	if err != nil {
		return nil, err
	}
	r.trial = trial
	r.pending = nil

	r.logger.Printf("trial %d started (%s)", trial.Number, trial.ID)
	return trial, nil
}

// Trial returns the open trial, or nil.
func (r *Recorder) Trial() *models.Trial {
	return r.trial
}

// Pending returns the transitions buffered for the open trial.
func (r *Recorder) Pending() []models.Transition {
	return append([]models.Transition(nil), r.pending...)
}

// EndTrial writes the outcome and every buffered transition in one
// transaction.
func (r *Recorder) EndTrial(outcome models.TrialOutcome) error {
	if r.trial == nil {
		return fmt.Errorf("no trial in progress: %w", models.ErrInvalidState)
	}

	trial := r.trial
	if err := r.store.EndTrialTx(trial.ID, outcome, r.pending); err != nil {
		return fmt.Errorf("end trial %d: %w", trial.Number, err)
	}

	r.logger.Printf("trial %d %s with %d transitions", trial.Number, outcome, len(r.pending))
	r.trial = nil
	r.pending = nil
	return nil
}

func (r *Recorder) record(s *scheduler.Scheduler, item int, visible bool, scheduledTime float64) {
	if r.trial == nil {
		return
	}
	r.pending = append(r.pending, models.Transition{
		TrialID:       r.trial.ID,
		Seq:           len(r.pending),
		Item:          item,
		ItemName:      s.Name(item),
		Visible:       visible,
		ScheduledTime: scheduledTime,
	})
}

// configView is the hashed form of a scheduler.Config. Stimuli are
// identified by name only.
type configView struct {
	Shown               []string     `json:"shown_stimuli"`
	OnsetTimes          []float64    `json:"onset_time,omitempty"`
	OnsetScalar         bool         `json:"onset_scalar,omitempty"`
	Duration            []float64    `json:"duration"`
	DurationScalar      bool         `json:"duration_scalar,omitempty"`
	Position            [][2]float64 `json:"position,omitempty"`
	LastStimulusRemains bool         `json:"last_stimulus_remains"`
	OnsetEvent          string       `json:"onset_event,omitempty"`
	InitEvent           string       `json:"init_event,omitempty"`
	TerminateEvents     []string     `json:"terminate_events,omitempty"`
}

// HashConfig returns a digest identifying the presentation cfg describes.
func HashConfig(cfg *scheduler.Config) string {
	if cfg == nil {
		return hashInputs(nil)
	}

	view := configView{
		Shown:               cfg.Shown,
		OnsetTimes:          cfg.OnsetTimes.Slice(),
		OnsetScalar:         cfg.OnsetTimes.IsScalar(),
		Duration:            cfg.Duration.Slice(),
		DurationScalar:      cfg.Duration.IsScalar(),
		LastStimulusRemains: cfg.LastStimulusRemains,
	}
	for i := 0; i < cfg.Position.Len(); i++ {
		p := cfg.Position.At(i)
		view.Position = append(view.Position, [2]float64{p.X, p.Y})
	}
	if cfg.OnsetEvent != nil {
		view.OnsetEvent = cfg.OnsetEvent.String()
	}
	if cfg.InitEvent != nil {
		view.InitEvent = cfg.InitEvent.String()
	}
	for _, e := range cfg.TerminateEvents {
		if e != nil {
			view.TerminateEvents = append(view.TerminateEvents, e.String())
		}
	}
	return hashInputs(view)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
