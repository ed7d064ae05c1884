package scheduler

import (
	"errors"
	"math"
	"testing"

	"github.com/fentz26/stimsched/internal/event"
	"github.com/fentz26/stimsched/internal/models"
)

// stimDbg is a stimulus that only remembers its visibility.
type stimDbg struct {
	name    string
	visible bool
	sets    int
}

func (s *stimDbg) SetVisible(v bool) {
	s.visible = v
	s.sets++
}

// callbackDbg counts callback invocations and keeps the last arguments.
type callbackDbg struct {
	calls   int
	item    int
	visible bool
	time    float64
	log     []string
}

func (c *callbackDbg) fn(s *Scheduler, item int, visible bool, scheduledTime float64) {
	c.calls++
	c.item = item
	c.visible = visible
	c.time = scheduledTime
	op := "hide"
	if visible {
		op = "show"
	}
	c.log = append(c.log, op+":"+s.Name(item))
}

func newStimuli(names ...string) map[string]Item {
	out := make(map[string]Item, len(names))
	for _, n := range names {
		out[n] = &stimDbg{name: n}
	}
	return out
}

func newTestScheduler(t *testing.T, shown []string, onset []float64, duration Values) *Scheduler {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Available = newStimuli("a", "b")
	cfg.Shown = shown
	if onset != nil {
		cfg.OnsetTimes = List(onset...)
	}
	cfg.Duration = duration
	cfg.Position = SinglePoint(0, 0)
	return New(cfg)
}

func assertVisibility(t *testing.T, s *Scheduler, when float64, want ...bool) {
	t.Helper()

	got := s.Visibility()
	if len(got) != len(want) {
		t.Fatalf("t=%v: expected %d stimuli, got %d", when, len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("t=%v: expected visibility %v, got %v", when, want, got)
			return
		}
		if item := s.Item(i).(*stimDbg); item.visible != want[i] {
			t.Errorf("t=%v: stimulus %d itself is visible=%v, expected %v", when, i, item.visible, want[i])
		}
	}
}

func mustInit(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.InitForTrial(); err != nil {
		t.Fatalf("InitForTrial failed: %v", err)
	}
}

func mustAdvance(t *testing.T, s *Scheduler, now float64) {
	t.Helper()
	if err := s.Advance(now); err != nil {
		t.Fatalf("Advance(%v) failed: %v", now, err)
	}
}

func TestOneStimulusOnsetZero(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{0}, Scalar(1))
	mustInit(t, s)
	assertVisibility(t, s, 0, false)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 10, true)

	mustAdvance(t, s, 10.99)
	assertVisibility(t, s, 10.99, true)

	mustAdvance(t, s, 11)
	assertVisibility(t, s, 11, false)

	mustAdvance(t, s, 20)
	assertVisibility(t, s, 20, false)
	if s.State() != StateDrained {
		t.Errorf("Expected drained, got %s", s.State())
	}
}

func TestOneStimulusDelayedOnset(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{1}, Scalar(1))
	mustInit(t, s)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 10, false)

	for _, step := range []struct {
		now     float64
		visible bool
	}{
		{10.5, false},
		{11, true},
		{11.99, true},
		{12, false},
	} {
		mustAdvance(t, s, step.now)
		assertVisibility(t, s, step.now, step.visible)
	}
}

func TestTwoStimuliSequence(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 3}, Scalar(1))
	mustInit(t, s)
	assertVisibility(t, s, 0, false, false)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 10, true, false)

	steps := []struct {
		now  float64
		want []bool
	}{
		{10.99, []bool{true, false}},
		{11, []bool{false, false}},
		{13, []bool{false, true}},
		{13.99, []bool{false, true}},
		{14, []bool{false, false}},
	}
	for _, step := range steps {
		mustAdvance(t, s, step.now)
		assertVisibility(t, s, step.now, step.want...)
	}
}

func TestLastStimulusRemains(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 3}, Scalar(1))
	s.Config().LastStimulusRemains = true
	mustInit(t, s)

	if got := len(s.Pending()); got != 3 {
		t.Errorf("Expected 3 pending operations, got %d", got)
	}

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 30)
	assertVisibility(t, s, 30, false, true)
}

func TestLastStimulusRemainsUsesLatestHide(t *testing.T) {
	// b starts first but hides last.
	s := newTestScheduler(t, []string{"a", "b"}, []float64{1, 0}, List(1, 5))
	s.Config().LastStimulusRemains = true
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 100)
	assertVisibility(t, s, 100, false, true)
}

func TestSimultaneousOperations(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{1, 0}, Scalar(2))
	mustInit(t, s)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 10, false, true)

	mustAdvance(t, s, 11)
	assertVisibility(t, s, 11, true, true)
	mustAdvance(t, s, 12)
	assertVisibility(t, s, 12, true, false)
	mustAdvance(t, s, 13)
	assertVisibility(t, s, 13, false, false)
}

func TestCancel(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{1, 0}, Scalar(2))
	cb := &callbackDbg{}
	s.OnVisibilityChange(cb.fn)
	mustInit(t, s)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 10, false, true)

	s.Cancel()
	if len(s.Pending()) != 0 {
		t.Errorf("Expected no pending operations after cancel, got %d", len(s.Pending()))
	}
	callsAtCancel := cb.calls

	for _, now := range []float64{11, 12, 13} {
		mustAdvance(t, s, now)
		assertVisibility(t, s, now, false, false)
	}
	if cb.calls != callsAtCancel {
		t.Errorf("Cancelled operations must not run callbacks (%d calls, expected %d)", cb.calls, callsAtCancel)
	}
	if s.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", s.State())
	}

	// A fresh init re-arms.
	mustInit(t, s)
	if s.State() != StateArmed || len(s.Pending()) != 4 {
		t.Errorf("Expected armed with 4 operations, got %s with %d", s.State(), len(s.Pending()))
	}
}

func TestCleanupOfExecutedOperations(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{0}, Scalar(1))
	mustInit(t, s)

	if err := s.StartShowing(10); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 10.5)
	if got := len(s.Pending()); got != 1 {
		t.Errorf("Only the hide operation should remain, got %d pending", got)
	}

	mustAdvance(t, s, 15)
	if got := len(s.Pending()); got != 0 {
		t.Errorf("Expected no pending operations, got %d", got)
	}
	if got := len(s.Executed()); got != 2 {
		t.Errorf("Expected 2 executed operations, got %d", got)
	}
	for _, op := range s.Executed() {
		if !op.Executed {
			t.Errorf("Operation %v should be marked executed", op)
		}
	}

	mustInit(t, s)
	if got := len(s.Pending()); got != 2 {
		t.Errorf("Expected show and hide after re-init, got %d", got)
	}
}

func TestPendingCountAfterInit(t *testing.T) {
	for _, remains := range []bool{false, true} {
		s := newTestScheduler(t, []string{"a", "b", "a"}, []float64{0, 1, 2}, Scalar(0.5))
		s.Config().LastStimulusRemains = remains
		mustInit(t, s)

		want := 6
		if remains {
			want = 5
		}
		if got := len(s.Pending()); got != want {
			t.Errorf("remains=%v: expected %d pending operations, got %d", remains, want, got)
		}
		for i, v := range s.Visibility() {
			if v {
				t.Errorf("remains=%v: stimulus %d should start invisible", remains, i)
			}
		}
	}
}

func TestAdvanceIsIdempotent(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0.5}, Scalar(1))
	cb := &callbackDbg{}
	s.OnVisibilityChange(cb.fn)
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 0.7)
	calls := cb.calls

	mustAdvance(t, s, 0.7)
	mustAdvance(t, s, 0.2)
	if cb.calls != calls {
		t.Errorf("Repeated advance fired %d extra callbacks", cb.calls-calls)
	}
}

func TestAdvanceBeforeAnyDueOperationIsNoop(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{5}, Scalar(1))
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 4.99)
	if len(s.Executed()) != 0 || len(s.Pending()) != 2 {
		t.Errorf("Nothing should have fired, executed=%d pending=%d", len(s.Executed()), len(s.Pending()))
	}
}

func TestCoalescingInOneAdvance(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0.1}, Scalar(0.1))
	cb := &callbackDbg{}
	s.OnVisibilityChange(cb.fn)
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}

	// One large frame gap covering every remaining operation.
	mustAdvance(t, s, 1)
	want := []string{"show:a", "hide:a", "show:b", "hide:b"}
	if len(cb.log) != len(want) {
		t.Fatalf("Expected %v, got %v", want, cb.log)
	}
	for i := range want {
		if cb.log[i] != want[i] {
			t.Errorf("Callback %d: expected %s, got %s", i, want[i], cb.log[i])
		}
	}

	var last float64 = math.Inf(-1)
	for _, op := range s.Executed() {
		if op.ScheduledTime < last {
			t.Errorf("Operation %v fired out of order", op)
		}
		last = op.ScheduledTime
	}
}

func TestTieBreakKeepsInsertionOrder(t *testing.T) {
	// a hides and b shows at exactly t=0.1; a's operations were built
	// first, so its hide fires before b's show.
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0.1}, Scalar(0.1))
	cb := &callbackDbg{}
	s.OnVisibilityChange(cb.fn)
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	if cb.calls != 1 {
		t.Fatalf("Expected 1 callback at start, got %d", cb.calls)
	}

	mustAdvance(t, s, 0.1)
	if cb.calls != 3 {
		t.Fatalf("Both operations at t=0.1 should fire in one call, got %d callbacks", cb.calls)
	}
	if cb.log[1] != "hide:a" || cb.log[2] != "show:b" {
		t.Errorf("Expected hide:a then show:b, got %v", cb.log[1:])
	}
	assertVisibility(t, s, 0.1, false, true)

	// The reverse insertion order flips the tie.
	r := newTestScheduler(t, []string{"b", "a"}, []float64{0.1, 0}, Scalar(0.1))
	rcb := &callbackDbg{}
	r.OnVisibilityChange(rcb.fn)
	mustInit(t, r)
	if err := r.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, r, 0.1)
	if rcb.log[1] != "show:b" || rcb.log[2] != "hide:a" {
		t.Errorf("Expected show:b then hide:a, got %v", rcb.log[1:])
	}
}

func TestCallbacks(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0.2}, Scalar(0.1))
	cb := &callbackDbg{}
	s.OnVisibilityChange(cb.fn)
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	if cb.calls != 1 || cb.item != 0 || !cb.visible {
		t.Errorf("After start: calls=%d item=%d visible=%v", cb.calls, cb.item, cb.visible)
	}

	mustAdvance(t, s, 0.08)
	if cb.calls != 1 {
		t.Errorf("No callback expected at 0.08, got %d calls", cb.calls)
	}

	mustAdvance(t, s, 0.1)
	if cb.calls != 2 || cb.item != 0 || cb.visible {
		t.Errorf("After 0.1: calls=%d item=%d visible=%v", cb.calls, cb.item, cb.visible)
	}
	if cb.time != 0.1 {
		t.Errorf("Expected scheduled time 0.1, got %v", cb.time)
	}

	mustAdvance(t, s, 0.2)
	if cb.calls != 3 || cb.item != 1 || !cb.visible {
		t.Errorf("After 0.2: calls=%d item=%d visible=%v", cb.calls, cb.item, cb.visible)
	}
}

func TestCallbackRegistrationOrder(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{0}, Scalar(1))
	var order []string
	s.OnVisibilityChange(func(*Scheduler, int, bool, float64) { order = append(order, "first") })
	s.OnVisibilityChange(func(*Scheduler, int, bool, float64) { order = append(order, "second") })
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Unexpected callback order %v", order)
	}
}

func TestCancelFromCallback(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0}, Scalar(1))
	calls := 0
	s.OnVisibilityChange(func(s *Scheduler, item int, visible bool, _ float64) {
		calls++
		s.Cancel()
	})
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Cancel inside a callback should stop the batch, got %d calls", calls)
	}
	assertVisibility(t, s, 0, false, false)
}

func TestInvalidState(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{0}, Scalar(1))

	if err := s.Advance(1); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("Advance before init: expected ErrInvalidState, got %v", err)
	}
	if err := s.StartShowing(1); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("StartShowing before init: expected ErrInvalidState, got %v", err)
	}

	mustInit(t, s)
	// Armed but not triggered: advancing does nothing.
	mustAdvance(t, s, 100)
	assertVisibility(t, s, 100, false)

	if err := s.StartShowing(1); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	if err := s.StartShowing(2); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("Second StartShowing: expected ErrInvalidState, got %v", err)
	}
	if err := s.Advance(math.NaN()); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Advance(NaN): expected ErrInvalidArgument, got %v", err)
	}
}

// InitForTrial reports an unusable configuration, including one with no
// resolvable shown stimulus, as a *ConfigError wrapping ErrConfiguration.
func TestInitRejectsInvalidConfig(t *testing.T) {
	s := newTestScheduler(t, []string{"c"}, []float64{0}, Scalar(1))

	err := s.InitForTrial()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("Expected a *ConfigError wrapping ErrConfiguration, got %v", err)
	}
	if errors.Is(err, models.ErrInvalidState) {
		t.Errorf("An invalid configuration is not a state error: %v", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("Failed init must not arm the scheduler, got %s", s.State())
	}

	s.Config().Shown = nil
	if err := s.InitForTrial(); !errors.As(err, &cfgErr) {
		t.Errorf("Expected a *ConfigError for no shown stimuli, got %v", err)
	}
}

func TestInitRejectsNilStimulusPointer(t *testing.T) {
	s := newTestScheduler(t, []string{"a"}, []float64{0}, Scalar(1))
	s.Config().Available["a"] = (*stimDbg)(nil)

	if err := s.InitForTrial(); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}

func TestOnsetDefaultsToTrigger(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, nil, Scalar(1))
	mustInit(t, s)

	if err := s.StartShowing(3); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	assertVisibility(t, s, 3, true, true)
	mustAdvance(t, s, 4)
	assertVisibility(t, s, 4, false, false)
}

func TestPerStimulusDuration(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 0}, List(1, 2))
	mustInit(t, s)

	if err := s.StartShowing(0); err != nil {
		t.Fatalf("StartShowing failed: %v", err)
	}
	mustAdvance(t, s, 1)
	assertVisibility(t, s, 1, false, true)
	mustAdvance(t, s, 2)
	assertVisibility(t, s, 2, false, false)
}

func TestPosition(t *testing.T) {
	s := newTestScheduler(t, []string{"a", "b"}, []float64{0, 1}, Scalar(1))
	s.Config().Position = PointList(Point{X: 1, Y: 2}, Point{X: 3, Y: 4})
	mustInit(t, s)

	p, ok := s.Position(1)
	if !ok || p.X != 3 || p.Y != 4 {
		t.Errorf("Expected (3,4), got %v (ok=%v)", p, ok)
	}

	s.Config().Position = Points{}
	if _, ok := s.Position(0); ok {
		t.Error("Expected no position when none is configured")
	}
}

func TestDefaultConfigEvents(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.InitEvent != event.TrialInitialized {
		t.Errorf("Expected init event TRIAL_INITIALIZED, got %v", cfg.InitEvent)
	}
	if len(cfg.TerminateEvents) != 1 || cfg.TerminateEvents[0] != event.TrialEnded {
		t.Errorf("Expected terminate event TRIAL_ENDED, got %v", cfg.TerminateEvents)
	}
	if cfg.OnsetEvent != nil {
		t.Errorf("Default config should use direct mode, got onset event %v", cfg.OnsetEvent)
	}
}
