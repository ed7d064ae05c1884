// Package experiment loads experiment files describing the stimuli and the
// presentation of a trial.
package experiment

import (
	"fmt"
	"path/filepath"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/fentz26/stimsched/internal/stimulus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Experiment is the content of an experiment file.
type Experiment struct {
	// TimeBase selects the clock the scheduler reads: session or trial.
	TimeBase models.TimeBase `yaml:"time_base"`
	// FrameRate is the number of frames per second the simulator and the
	// TUI deliver.
	FrameRate float64 `yaml:"frame_rate"`
	// Stimuli lists every stimulus that trials may show.
	Stimuli []Stimulus `yaml:"stimuli"`
	// Trial defines what each trial presents.
	Trial Trial `yaml:"trial"`
}

// Stimulus declares one named stimulus.
type Stimulus struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// Trial is the presentation of one trial. Events use the textual event
// format, "none" disabling one.
type Trial struct {
	ShownStimuli        []string         `yaml:"shown_stimuli"`
	OnsetTime           scheduler.Values `yaml:"onset_time,omitempty"`
	Duration            scheduler.Values `yaml:"duration"`
	Position            scheduler.Points `yaml:"position,omitempty"`
	LastStimulusRemains bool             `yaml:"last_stimulus_remains"`
	OnsetEvent          string           `yaml:"onset_event,omitempty"`
	// InitEvent defaults to TRIAL_INITIALIZED when empty.
	InitEvent string `yaml:"init_event,omitempty"`
	// TerminateEvents defaults to [TRIAL_ENDED] when empty.
	TerminateEvents []string `yaml:"terminate_events,omitempty"`
}

// Default returns an experiment with the default clock and frame rate and
// nothing to show.
func Default() *Experiment {
	return &Experiment{
		TimeBase:  models.TimeBaseSession,
		FrameRate: 60,
	}
}

// Load reads an experiment file from disk.
func Load(path string) (*Experiment, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads an experiment file from fs.
func LoadFs(fs afero.Fs, path string) (*Experiment, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment file: %w", err)
	}
	return Parse(data)
}

// Parse decodes an experiment file. Fields that are absent keep their
// defaults. The result is not validated.
func Parse(data []byte) (*Experiment, error) {
	exp := Default()
	if err := yaml.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("parsing experiment file: %v: %w", err, models.ErrBadFormat)
	}
	return exp, nil
}

// Save writes an experiment file, creating parent directories if needed.
func Save(path string, exp *Experiment) error {
	return SaveFs(afero.NewOsFs(), path, exp)
}

// SaveFs writes an experiment file on fs.
func SaveFs(fs afero.Fs, path string, exp *Experiment) error {
	if exp == nil {
		return fmt.Errorf("experiment cannot be nil")
	}
	if err := exp.Validate(); err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating experiment dir: %w", err)
	}

	data, err := yaml.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshaling experiment: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing experiment file: %w", err)
	}
	return nil
}

// NewStimuli creates the declared stimuli, all hidden.
func (e *Experiment) NewStimuli() (*stimulus.Set, error) {
	set := stimulus.NewSet()
	for _, s := range e.Stimuli {
		if err := set.Add(stimulus.New(s.Name, s.Text)); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Build translates the trial into a scheduler configuration over items.
// Only event texts are checked; scheduler.Validate checks the rest.
func (e *Experiment) Build(items map[string]scheduler.Item) (*scheduler.Config, error) {
	cfg := scheduler.DefaultConfig()
	cfg.Available = items
	cfg.Shown = append([]string(nil), e.Trial.ShownStimuli...)
	cfg.OnsetTimes = e.Trial.OnsetTime
	cfg.Duration = e.Trial.Duration
	cfg.Position = e.Trial.Position
	cfg.LastStimulusRemains = e.Trial.LastStimulusRemains

	var err error
	if e.Trial.OnsetEvent != "" {
		if cfg.OnsetEvent, err = event.Parse(e.Trial.OnsetEvent); err != nil {
			return nil, fmt.Errorf("onset_event: %w", err)
		}
	}
	if e.Trial.InitEvent != "" {
		if cfg.InitEvent, err = event.Parse(e.Trial.InitEvent); err != nil {
			return nil, fmt.Errorf("init_event: %w", err)
		}
	}
	if len(e.Trial.TerminateEvents) > 0 {
		cfg.TerminateEvents = nil
		for i, text := range e.Trial.TerminateEvents {
			ev, err := event.Parse(text)
			if err != nil {
				return nil, fmt.Errorf("terminate_events[%d]: %w", i, err)
			}
			if ev != nil {
				cfg.TerminateEvents = append(cfg.TerminateEvents, ev)
			}
		}
	}
	return cfg, nil
}

// Validate checks the experiment as a whole, including the trial
// configuration it builds.
func (e *Experiment) Validate() error {
	if !e.TimeBase.Valid() {
		return fmt.Errorf("invalid time_base %q, must be session or trial: %w", e.TimeBase, models.ErrConfiguration)
	}
	if !(e.FrameRate > 0) {
		return fmt.Errorf("frame_rate must be positive, got %v: %w", e.FrameRate, models.ErrConfiguration)
	}

	set, err := e.NewStimuli()
	if err != nil {
		return fmt.Errorf("stimuli: %v: %w", err, models.ErrConfiguration)
	}
	cfg, err := e.Build(set.Items())
	if err != nil {
		return err
	}
	return scheduler.Validate(cfg)
}

// FramePeriod returns the duration of one frame in seconds.
func (e *Experiment) FramePeriod() float64 {
	if e.FrameRate <= 0 {
		return 1.0 / 60
	}
	return 1 / e.FrameRate
}
