// Package store provides SQLite-backed persistence of trial results.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/stimsched/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrTrialNotRunning indicates the trial does not exist or already ended.
var ErrTrialNotRunning = errors.New("trial not found or not running")

// Store provides access to the results database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		subject TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trials (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		config_hash TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'running',
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS transitions (
		trial_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		item INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		visible INTEGER NOT NULL,
		scheduled_time REAL NOT NULL,
		PRIMARY KEY (trial_id, seq),
		FOREIGN KEY (trial_id) REFERENCES trials(id)
	);

	CREATE INDEX IF NOT EXISTS idx_trials_session_id ON trials(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Session Operations ---

// CreateSession inserts a new session.
func (s *Store) CreateSession(experiment, subject string) (*models.Session, error) {
	session := &models.Session{
		ID:         uuid.New().String(),
		Experiment: experiment,
		Subject:    subject,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, experiment, subject, created_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Experiment, session.Subject, session.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by ID. It returns nil if none exists.
func (s *Store) GetSession(id string) (*models.Session, error) {
	session := &models.Session{}
	var subject sql.NullString

	err := s.db.QueryRow(
		`SELECT id, experiment, subject, created_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.Experiment, &subject, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	session.Subject = subject.String
	return session, nil
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT id, experiment, subject, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		var subject sql.NullString
		if err := rows.Scan(&session.ID, &session.Experiment, &subject, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Subject = subject.String
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// --- Trial Operations ---

// StartTrial inserts a running trial numbered after the session's last one.
func (s *Store) StartTrial(sessionID, configHash string) (*models.Trial, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(number) FROM trials WHERE session_id = ?`, sessionID).Scan(&last); err != nil {
		return nil, fmt.Errorf("query trial number: %w", err)
	}

	trial := &models.Trial{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Number:     int(last.Int64) + 1,
		ConfigHash: configHash,
		Outcome:    models.TrialOutcomeRunning,
		StartedAt:  time.Now().UTC(),
	}

	_, err = tx.Exec(
		`INSERT INTO trials (id, session_id, number, config_hash, outcome, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		trial.ID, trial.SessionID, trial.Number, trial.ConfigHash, trial.Outcome, trial.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert trial: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return trial, nil
}

// EndTrialTx atomically marks a running trial as ended and stores its
// transitions. On any error, neither the outcome nor the transitions are
// persisted.
func (s *Store) EndTrialTx(trialID string, outcome models.TrialOutcome, transitions []models.Transition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE trials SET outcome = ?, ended_at = ? WHERE id = ? AND outcome = ?`,
		outcome, now, trialID, models.TrialOutcomeRunning,
	)
	if err != nil {
		return fmt.Errorf("update trial outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTrialNotRunning
	}

	stmt, err := tx.Prepare(
		`INSERT INTO transitions (trial_id, seq, item, item_name, visible, scheduled_time) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare transition insert: %w", err)
	}
	defer stmt.Close()

	for i, tr := range transitions {
		if _, err := stmt.Exec(trialID, i, tr.Item, tr.ItemName, tr.Visible, tr.ScheduledTime); err != nil {
			return fmt.Errorf("insert transition %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTrial retrieves a trial by ID. It returns nil if none exists.
func (s *Store) GetTrial(id string) (*models.Trial, error) {
	trial := &models.Trial{}
	var endedAt sql.NullTime

	err := s.db.QueryRow(
		`SELECT id, session_id, number, config_hash, outcome, started_at, ended_at FROM trials WHERE id = ?`,
		id,
	).Scan(&trial.ID, &trial.SessionID, &trial.Number, &trial.ConfigHash, &trial.Outcome, &trial.StartedAt, &endedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query trial: %w", err)
	}
	if endedAt.Valid {
		trial.EndedAt = &endedAt.Time
	}
	return trial, nil
}

// ListTrials returns the trials of a session in order. An empty session ID
// lists the trials of every session.
func (s *Store) ListTrials(sessionID string) ([]models.Trial, error) {
	query := `SELECT id, session_id, number, config_hash, outcome, started_at, ended_at FROM trials`
	var args []interface{}

	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at, number`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var trials []models.Trial
	for rows.Next() {
		var trial models.Trial
		var endedAt sql.NullTime
		if err := rows.Scan(&trial.ID, &trial.SessionID, &trial.Number, &trial.ConfigHash, &trial.Outcome, &trial.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if endedAt.Valid {
			trial.EndedAt = &endedAt.Time
		}
		trials = append(trials, trial)
	}
	return trials, rows.Err()
}

// --- Transition Operations ---

// GetTransitions returns the transitions of a trial in execution order.
func (s *Store) GetTransitions(trialID string) ([]models.Transition, error) {
	rows, err := s.db.Query(
		`SELECT trial_id, seq, item, item_name, visible, scheduled_time FROM transitions WHERE trial_id = ? ORDER BY seq`,
		trialID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var tr models.Transition
		if err := rows.Scan(&tr.TrialID, &tr.Seq, &tr.Item, &tr.ItemName, &tr.Visible, &tr.ScheduledTime); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}
