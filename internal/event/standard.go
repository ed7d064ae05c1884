package event

// Standard trial events.
var (
	TrialInitialized = MustNew("TRIAL_INITIALIZED", nil)
	TrialStarted     = MustNew("TRIAL_STARTED", nil)
	TrialEnded       = MustNew("TRIAL_ENDED", nil)
	TrialSucceeded   = MustNew("TRIAL_SUCCEEDED", TrialEnded)
	TrialFailed      = MustNew("TRIAL_FAILED", TrialEnded)
)

var standard = map[string]*Event{
	TrialInitialized.id: TrialInitialized,
	TrialStarted.id:     TrialStarted,
	TrialEnded.id:       TrialEnded,
	TrialSucceeded.id:   TrialSucceeded,
	TrialFailed.id:      TrialFailed,
}

// Standard returns the predefined event with the given id, or nil.
func Standard(id string) *Event {
	return standard[id]
}

// parentOf keeps the hierarchy of standard events intact for parsed text,
// so that "TRIAL_SUCCEEDED" still matches a TRIAL_ENDED listener.
func parentOf(id string) *Event {
	if e, ok := standard[id]; ok {
		return e.extends
	}
	return nil
}
