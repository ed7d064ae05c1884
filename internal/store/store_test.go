package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/stimsched/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "results", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	session, err := s.CreateSession("exp", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Error("Session should survive reopening")
	}
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	session, err := s.CreateSession("flanker", "s01")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID == "" {
		t.Error("Session ID should not be empty")
	}

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Experiment != "flanker" || got.Subject != "s01" {
		t.Errorf("Unexpected session %+v", got)
	}

	missing, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown session")
	}

	if _, err := s.CreateSession("flanker", ""); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestTrialLifecycle(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	session, err := s.CreateSession("exp", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	first, err := s.StartTrial(session.ID, "hash-1")
	if err != nil {
		t.Fatalf("StartTrial failed: %v", err)
	}
	if first.Number != 1 || first.Outcome != models.TrialOutcomeRunning {
		t.Errorf("Unexpected first trial %+v", first)
	}

	second, err := s.StartTrial(session.ID, "hash-1")
	if err != nil {
		t.Fatalf("StartTrial failed: %v", err)
	}
	if second.Number != 2 {
		t.Errorf("Expected trial number 2, got %d", second.Number)
	}

	transitions := []models.Transition{
		{Item: 0, ItemName: "a", Visible: true, ScheduledTime: 10},
		{Item: 0, ItemName: "a", Visible: false, ScheduledTime: 11},
		{Item: 1, ItemName: "b", Visible: true, ScheduledTime: 13.5},
	}
	if err := s.EndTrialTx(first.ID, models.TrialOutcomeSucceeded, transitions); err != nil {
		t.Fatalf("EndTrialTx failed: %v", err)
	}

	got, err := s.GetTrial(first.ID)
	if err != nil {
		t.Fatalf("GetTrial failed: %v", err)
	}
	if got.Outcome != models.TrialOutcomeSucceeded {
		t.Errorf("Expected succeeded, got %s", got.Outcome)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt should be set")
	}
	if got.ConfigHash != "hash-1" {
		t.Errorf("Expected config hash hash-1, got %s", got.ConfigHash)
	}

	stored, err := s.GetTransitions(first.ID)
	if err != nil {
		t.Fatalf("GetTransitions failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Expected 3 transitions, got %d", len(stored))
	}
	for i, tr := range stored {
		if tr.Seq != i || tr.TrialID != first.ID {
			t.Errorf("Transition %d: unexpected seq %d or trial %s", i, tr.Seq, tr.TrialID)
		}
	}
	if stored[1].Visible || !stored[2].Visible || stored[2].ScheduledTime != 13.5 || stored[2].ItemName != "b" {
		t.Errorf("Transitions not stored faithfully: %+v", stored)
	}

	trials, err := s.ListTrials(session.ID)
	if err != nil {
		t.Fatalf("ListTrials failed: %v", err)
	}
	if len(trials) != 2 {
		t.Errorf("Expected 2 trials, got %d", len(trials))
	}
}

func TestEndTrialTx_NotRunning(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if err := s.EndTrialTx("missing", models.TrialOutcomeFailed, nil); !errors.Is(err, ErrTrialNotRunning) {
		t.Errorf("Expected ErrTrialNotRunning, got %v", err)
	}

	session, _ := s.CreateSession("exp", "")
	trial, err := s.StartTrial(session.ID, "h")
	if err != nil {
		t.Fatalf("StartTrial failed: %v", err)
	}
	if err := s.EndTrialTx(trial.ID, models.TrialOutcomeFailed, nil); err != nil {
		t.Fatalf("EndTrialTx failed: %v", err)
	}
	if err := s.EndTrialTx(trial.ID, models.TrialOutcomeSucceeded, nil); !errors.Is(err, ErrTrialNotRunning) {
		t.Errorf("Ending twice: expected ErrTrialNotRunning, got %v", err)
	}

	got, _ := s.GetTrial(trial.ID)
	if got.Outcome != models.TrialOutcomeFailed {
		t.Errorf("Outcome must not change once ended, got %s", got.Outcome)
	}
}

func TestEndTrialTx_Atomicity(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	session, _ := s.CreateSession("exp", "")
	trial, err := s.StartTrial(session.ID, "h")
	if err != nil {
		t.Fatalf("StartTrial failed: %v", err)
	}

	// Insert a transition directly so the second insert collides on the
	// primary key and the whole transaction rolls back.
	if _, err := s.db.Exec(
		`INSERT INTO transitions (trial_id, seq, item, item_name, visible, scheduled_time) VALUES (?, 1, 0, 'x', 0, 0)`,
		trial.ID,
	); err != nil {
		t.Fatalf("seed transition: %v", err)
	}

	transitions := []models.Transition{{ItemName: "a"}, {ItemName: "b"}}
	if err := s.EndTrialTx(trial.ID, models.TrialOutcomeSucceeded, transitions); err == nil {
		t.Fatal("Expected EndTrialTx to fail")
	}

	got, _ := s.GetTrial(trial.ID)
	if got.Outcome != models.TrialOutcomeRunning {
		t.Errorf("Outcome should have rolled back, got %s", got.Outcome)
	}
	stored, _ := s.GetTransitions(trial.ID)
	if len(stored) != 1 {
		t.Errorf("Expected only the seeded transition, got %d", len(stored))
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Ping(ctx)
	if err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
