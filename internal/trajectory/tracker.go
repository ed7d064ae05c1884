// Package trajectory records pointer movement during a trial and saves it
// as CSV.
package trajectory

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/fentz26/stimsched/internal/models"
	"github.com/spf13/afero"
)

// Default output precisions.
const (
	DefaultXYPrecision   = 5
	DefaultTimePrecision = 3
)

// XYT is one tracked sample.
type XYT struct {
	X    float64
	Y    float64
	Time float64
}

// Tracker accumulates samples between resets. It starts disabled.
type Tracker struct {
	fs       afero.Fs
	filename string
	logger   *log.Logger

	enabled           bool
	trackIfNoMovement bool

	points []XYT

	initialized bool
	xyPrec      int
	timePrec    int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used to trace saved trials.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Enabled starts the tracker enabled.
func Enabled() Option {
	return func(t *Tracker) { t.enabled = true }
}

// TrackIfNoMovement records samples whose position repeats the previous.
func TrackIfNoMovement() Option {
	return func(t *Tracker) { t.trackIfNoMovement = true }
}

// New creates a tracker writing filename on fs, which may be empty until
// InitOutputFile names one.
func New(fs afero.Fs, filename string, opts ...Option) *Tracker {
	t := &Tracker{
		fs:       fs,
		filename: filename,
		logger:   log.New(io.Discard, "", 0),
		xyPrec:   DefaultXYPrecision,
		timePrec: DefaultTimePrecision,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetEnabled turns tracking on or off.
func (t *Tracker) SetEnabled(enabled bool) { t.enabled = enabled }

// IsEnabled reports whether samples are being recorded.
func (t *Tracker) IsEnabled() bool { return t.enabled }

// SetTrackIfNoMovement sets whether repeated positions are recorded.
func (t *Tracker) SetTrackIfNoMovement(v bool) { t.trackIfNoMovement = v }

// Reset forgets every sample. time0 is ignored.
func (t *Tracker) Reset(time0 float64) {
	t.points = nil
}

// UpdateXYT records a sample. Disabled trackers validate and drop it.
func (t *Tracker) UpdateXYT(x, y, timeInTrial float64) error {
	if !finite(x) || !finite(y) {
		return fmt.Errorf("invalid coordinates (%v, %v): %w", x, y, models.ErrInvalidArgument)
	}
	if !finite(timeInTrial) || timeInTrial < 0 {
		return fmt.Errorf("invalid time (%v), expecting a non-negative number: %w", timeInTrial, models.ErrInvalidArgument)
	}
	if !t.enabled {
		return nil
	}

	if n := len(t.points); !t.trackIfNoMovement && n > 0 && t.points[n-1].X == x && t.points[n-1].Y == y {
		return nil
	}
	t.points = append(t.points, XYT{X: x, Y: y, Time: timeInTrial})
	return nil
}

// XYT returns the samples tracked since the last reset.
func (t *Tracker) XYT() []XYT {
	return append([]XYT(nil), t.points...)
}

// InitOutputFile truncates the output file and writes the CSV header. An
// empty filename keeps the one given to New.
func (t *Tracker) InitOutputFile(filename string, xyPrecision, timePrecision int) error {
	if filename != "" {
		t.filename = filename
	}
	if t.filename == "" {
		return fmt.Errorf("no trajectory output file: %w", models.ErrInvalidArgument)
	}
	if xyPrecision < 0 || timePrecision < 0 {
		return fmt.Errorf("negative precision: %w", models.ErrInvalidArgument)
	}

	if err := afero.WriteFile(t.fs, t.filename, []byte("trial,time,x,y\n"), 0644); err != nil {
		return fmt.Errorf("init trajectory file: %w", err)
	}
	t.xyPrec = xyPrecision
	t.timePrec = timePrecision
	t.initialized = true

	t.logger.Printf("trajectory output %s", t.filename)
	return nil
}

// SaveToFile appends the samples tracked since the last reset, tagged with
// trialNum, and returns the number of rows written.
func (t *Tracker) SaveToFile(trialNum int) (int, error) {
	if !t.initialized {
		return 0, fmt.Errorf("SaveToFile called before InitOutputFile: %w", models.ErrInvalidState)
	}

	f, err := t.fs.OpenFile(t.filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("open trajectory file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range t.points {
		fmt.Fprintf(w, "%d,%s,%s,%s\n", trialNum,
			strconv.FormatFloat(p.Time, 'f', t.timePrec, 64),
			t.coord(p.X), t.coord(p.Y))
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("write trajectory: %w", err)
	}

	t.logger.Printf("trajectory trial %d: %d rows", trialNum, len(t.points))
	return len(t.points), nil
}

// coord prints whole numbers without decimals.
func (t *Tracker) coord(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', t.xyPrec, 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
