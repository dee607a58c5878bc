package domain

// SessionOutcome is the terminal outcome of one derivation session.
type SessionOutcome string

const (
	// OutcomeResultReady means the plan decrypted and the receipt verified.
	OutcomeResultReady SessionOutcome = "RESULT_READY"
	// OutcomeFailed covers cluster-side failure, verification failure, and
	// rejected submissions.
	OutcomeFailed SessionOutcome = "FAILED"
	// OutcomeTimedOut means the session deadline elapsed while the
	// computation was still pending.
	OutcomeTimedOut SessionOutcome = "TIMED_OUT"
)

// Valid reports whether the outcome is a known value.
func (o SessionOutcome) Valid() bool {
	switch o {
	case OutcomeResultReady, OutcomeFailed, OutcomeTimedOut:
		return true
	}
	return false
}

// SessionAudit is one append-only audit row per finished session. It carries
// only public protocol facts: identifiers, timings, and outcome. Plaintext
// inputs and plans never appear here.
type SessionAudit struct {
	SessionID     string
	Circuit       CircuitID
	ComputationID string
	Outcome       SessionOutcome
	// FailureKind names the verification or transport failure class for
	// FAILED sessions, empty otherwise.
	FailureKind string
	Polls       uint32
	SubmittedAt int64 // unix seconds
	FinishedAt  int64 // unix seconds
	DurationMs  int64
}
