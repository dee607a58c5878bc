// Package orchestrator drives one confidential derivation session end to
// end: seal input → submit → await completion → decrypt → verify receipt →
// decode plan.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"evalys-gmpc/internal/cipher"
	"evalys-gmpc/internal/codec"
	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/mxe"
	"evalys-gmpc/internal/observability"
	"evalys-gmpc/internal/storage"
	"evalys-gmpc/internal/verification"
)

// ErrTimedOut is returned when the session deadline elapses while the
// computation is still pending.
var ErrTimedOut = errors.New("session timed out awaiting completion")

// ErrReceiptReplayed is returned when a verified receipt's receipt_id is
// already in the receipt store.
var ErrReceiptReplayed = errors.New("receipt replayed: receipt_id already stored")

// SessionState tracks where a session is in its lifecycle.
type SessionState string

const (
	StateSubmitted          SessionState = "SUBMITTED"
	StateAwaitingCompletion SessionState = "AWAITING_COMPLETION"
	StateResultReady        SessionState = "RESULT_READY"
	StateFailed             SessionState = "FAILED"
	StateTimedOut           SessionState = "TIMED_OUT"
)

// Config controls polling cadence and the session deadline.
type Config struct {
	// PollInterval is the initial delay between status polls.
	PollInterval time.Duration
	// MaxPollInterval caps the backed-off poll delay.
	MaxPollInterval time.Duration
	// BackoffMultiplier grows the poll delay after each PENDING response.
	BackoffMultiplier float64
	// Deadline bounds the whole session from submission.
	Deadline time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		MaxPollInterval:   5 * time.Second,
		BackoffMultiplier: 2.0,
		Deadline:          2 * time.Minute,
	}
}

// StatusWatcher supplies push notifications for a computation's status.
// *mxe.WSWatcher implements it.
type StatusWatcher interface {
	Watch(ctx context.Context, computationID string) (<-chan mxe.StatusNotification, func(), error)
}

// Options for creating an Orchestrator.
type Options struct {
	// Client is the cluster boundary. Required.
	Client mxe.ComputeClient
	// SharedKey seals inputs and opens outputs. Required.
	SharedKey cipher.Key
	// ReceiptStore persists verified receipts and detects replays. Required.
	ReceiptStore storage.ReceiptStore
	// AuditStore records one row per finished session. Optional.
	AuditStore storage.SessionAuditStore
	// Watcher, when set, supplies push notifications so the session can
	// react before the next poll tick. Polling still runs as the fallback.
	Watcher StatusWatcher

	Config  Config
	Logger  *log.Logger
	Verbose bool
}

// Orchestrator runs derivation sessions against one cluster.
type Orchestrator struct {
	client       mxe.ComputeClient
	sharedKey    cipher.Key
	receiptStore storage.ReceiptStore
	auditStore   storage.SessionAuditStore
	watcher      StatusWatcher
	config       Config
	logger       *log.Logger
	verbose      bool

	verifier *verification.Verifier
}

// New creates an Orchestrator and pins the cluster authority key. The key is
// fetched once here so a key rotation mid-session cannot change what a
// receipt is checked against.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("orchestrator: nil compute client")
	}
	if opts.ReceiptStore == nil {
		return nil, errors.New("orchestrator: nil receipt store")
	}

	cfg := opts.Config
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}

	authority, err := opts.Client.AuthorityKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch authority key: %w", err)
	}
	verifier, err := verification.NewVerifier(authority)
	if err != nil {
		return nil, fmt.Errorf("authority key: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		client:       opts.Client,
		sharedKey:    opts.SharedKey,
		receiptStore: opts.ReceiptStore,
		auditStore:   opts.AuditStore,
		watcher:      opts.Watcher,
		config:       cfg,
		logger:       logger,
		verbose:      opts.Verbose,
		verifier:     verifier,
	}, nil
}

// SessionResult is the outcome of a successful session.
type SessionResult struct {
	SessionID     string
	ComputationID string
	Plan          *domain.Plan
	Receipt       domain.ComputationReceipt
	Polls         int
	SubmittedAt   time.Time
	FinishedAt    time.Time
}

// Run executes one derivation session. On success the returned plan is the
// attested, receipt-verified output of the cluster. Any error means the plan
// must not be acted on.
func (o *Orchestrator) Run(ctx context.Context, in *domain.ComputationInput) (*SessionResult, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}
	circuit := in.Circuit
	observability.RecordSessionStarted(string(circuit))

	result, runErr := o.run(ctx, sessionID, in)

	outcome := domain.OutcomeResultReady
	failureKind := ""
	if runErr != nil {
		outcome = domain.OutcomeFailed
		if errors.Is(runErr, ErrTimedOut) {
			outcome = domain.OutcomeTimedOut
		}
		failureKind = classifyFailure(runErr)
	}

	finished := time.Now()
	submitted := finished
	polls := 0
	computationID := ""
	if result != nil {
		submitted = result.SubmittedAt
		polls = result.Polls
		computationID = result.ComputationID
	}
	duration := finished.Sub(submitted)

	observability.RecordSessionFinished(string(circuit), string(outcome), duration.Seconds(), polls)
	if outcome == domain.OutcomeResultReady {
		observability.DefaultMetrics.LastSuccessfulSession.SetToCurrentTime()
	}

	if o.auditStore != nil {
		audit := &domain.SessionAudit{
			SessionID:     sessionID,
			Circuit:       circuit,
			ComputationID: computationID,
			Outcome:       outcome,
			FailureKind:   failureKind,
			Polls:         uint32(polls),
			SubmittedAt:   submitted.Unix(),
			FinishedAt:    finished.Unix(),
			DurationMs:    duration.Milliseconds(),
		}
		if err := o.auditStore.Insert(ctx, audit); err != nil {
			// Audit is best-effort: losing a row must not fail a session
			// whose plan already verified.
			o.logger.Printf("[session %s] audit insert failed: %v", sessionID, err)
		}
	}

	if runErr != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, runErr)
	}
	result.FinishedAt = finished
	return result, nil
}

// run performs the session steps. It returns a partial SessionResult even on
// error so the caller can audit what happened.
func (o *Orchestrator) run(ctx context.Context, sessionID string, in *domain.ComputationInput) (*SessionResult, error) {
	plainInput, err := codec.EncodeInput(in)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	sealedInput, err := cipher.Seal(o.sharedKey, plainInput)
	if err != nil {
		return nil, fmt.Errorf("seal input: %w", err)
	}

	submittedAt := time.Now()
	computationID, err := o.client.Submit(ctx, in.Circuit, sealedInput)
	if err != nil {
		observability.RecordSubmission(string(in.Circuit), "error")
		return nil, fmt.Errorf("submit: %w", err)
	}
	observability.RecordSubmission(string(in.Circuit), "ok")
	o.log("session %s: submitted computation %s (%s)", sessionID, computationID, in.Circuit)

	result := &SessionResult{
		SessionID:     sessionID,
		ComputationID: computationID,
		SubmittedAt:   submittedAt,
	}

	status, polls, err := o.awaitCompletion(ctx, computationID, submittedAt)
	result.Polls = polls
	if err != nil {
		return result, err
	}
	if status == domain.StatusFailed {
		return result, fmt.Errorf("computation %s: %w", computationID, verification.ErrComputationFailed)
	}

	compResult, err := o.client.FetchResult(ctx, computationID)
	if err != nil {
		return result, fmt.Errorf("fetch result: %w", err)
	}

	planBytes, err := cipher.Open(o.sharedKey, compResult.EncryptedOutput)
	if err != nil {
		return result, fmt.Errorf("open output: %w", err)
	}

	if err := o.verifier.Verify(&compResult.Receipt, planBytes, computationID, submittedAt); err != nil {
		observability.RecordVerificationFailure(classifyFailure(err))
		return result, fmt.Errorf("verify receipt: %w", err)
	}

	if err := o.receiptStore.Insert(ctx, &compResult.Receipt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordReceiptReplay()
			return result, ErrReceiptReplayed
		}
		return result, fmt.Errorf("store receipt: %w", err)
	}
	observability.RecordReceiptVerified()

	plan, err := codec.DecodePlan(in.Circuit, planBytes)
	if err != nil {
		return result, fmt.Errorf("decode plan: %w", err)
	}

	result.Plan = plan
	result.Receipt = compResult.Receipt
	o.log("session %s: result ready after %d polls", sessionID, polls)
	return result, nil
}

// awaitCompletion polls until a terminal status, the deadline, or ctx
// cancellation. With a watcher attached, status pushes short-circuit the
// next poll delay; polling remains the source of truth.
func (o *Orchestrator) awaitCompletion(ctx context.Context, computationID string, submittedAt time.Time) (domain.ComputationStatus, int, error) {
	deadline := submittedAt.Add(o.config.Deadline)

	var pushCh <-chan mxe.StatusNotification
	if o.watcher != nil {
		ch, cancel, err := o.watcher.Watch(ctx, computationID)
		if err != nil {
			o.log("watch %s unavailable, polling only: %v", computationID, err)
		} else {
			pushCh = ch
			defer cancel()
		}
	}

	delay := o.config.PollInterval
	polls := 0
	for {
		status, err := o.client.PollStatus(ctx, computationID)
		polls++
		if err != nil {
			return "", polls, fmt.Errorf("poll status: %w", err)
		}
		if status != domain.StatusPending {
			return status, polls, nil
		}

		if time.Now().Add(delay).After(deadline) {
			// A final immediate poll is pointless: the one above just
			// reported PENDING.
			return "", polls, ErrTimedOut
		}

		// PENDING pushes and a closed watcher carry no news: stay in the
		// wait so a flapping watcher cannot collapse the backoff into a
		// poll storm. Only a terminal push cuts the wait short, and it is
		// still confirmed over HTTP rather than trusted alone.
		timer := time.NewTimer(delay)
		waiting := true
		for waiting {
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", polls, ctx.Err()
			case n, ok := <-pushCh:
				if !ok {
					pushCh = nil
					continue
				}
				if n.Status != domain.StatusPending {
					timer.Stop()
					waiting = false
				}
			case <-timer.C:
				waiting = false
			}
		}

		delay = time.Duration(float64(delay) * o.config.BackoffMultiplier)
		if delay > o.config.MaxPollInterval {
			delay = o.config.MaxPollInterval
		}
	}
}

// classifyFailure names the failure class for metrics and audit rows.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, verification.ErrComputationMismatch):
		return "computation_mismatch"
	case errors.Is(err, verification.ErrComputationFailed):
		return "computation_failed"
	case errors.Is(err, verification.ErrResultTampered):
		return "result_tampered"
	case errors.Is(err, verification.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, verification.ErrReceiptIDMismatch):
		return "receipt_id_mismatch"
	case errors.Is(err, verification.ErrStaleOrFutureReceipt):
		return "stale_or_future_receipt"
	case errors.Is(err, ErrReceiptReplayed):
		return "receipt_replayed"
	case errors.Is(err, mxe.ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		o.logger.Printf("[orchestrator] "+format, args...)
	}
}
