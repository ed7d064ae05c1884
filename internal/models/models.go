// Package models defines the core domain types for stimsched.
package models

import "time"

// TimeBase selects which of the two clocks a listener reads.
type TimeBase string

const (
	// TimeBaseSession measures seconds since the session started.
	TimeBaseSession TimeBase = "session"
	// TimeBaseTrial measures seconds since the current trial started.
	TimeBaseTrial TimeBase = "trial"
)

// Valid reports whether b is one of the known time bases.
func (b TimeBase) Valid() bool {
	return b == TimeBaseSession || b == TimeBaseTrial
}

// Clock is the pair of time stamps delivered with every dispatched event
// and frame, tagged with the base the dispatcher is configured to use.
type Clock struct {
	InTrial   float64
	InSession float64
	Base      TimeBase
}

// Now returns the stamp selected by the clock's time base.
func (c Clock) Now() float64 {
	if c.Base == TimeBaseTrial {
		return c.InTrial
	}
	return c.InSession
}

// TrialOutcome represents how a trial ended.
type TrialOutcome string

const (
	TrialOutcomeRunning   TrialOutcome = "running"
	TrialOutcomeSucceeded TrialOutcome = "succeeded"
	TrialOutcomeFailed    TrialOutcome = "failed"
	TrialOutcomeCancelled TrialOutcome = "cancelled"
)

// Session groups the trials of one experiment run.
type Session struct {
	ID         string    `json:"id"`
	Experiment string    `json:"experiment"`
	Subject    string    `json:"subject,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Trial is the results-log record of one trial.
type Trial struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	Number     int          `json:"number"`
	ConfigHash string       `json:"config_hash"`
	Outcome    TrialOutcome `json:"outcome"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// Transition records one executed show/hide operation.
type Transition struct {
	TrialID       string  `json:"trial_id"`
	Seq           int     `json:"seq"`
	Item          int     `json:"item"`
	ItemName      string  `json:"item_name"`
	Visible       bool    `json:"visible"`
	ScheduledTime float64 `json:"scheduled_time"`
}
