// Package mxe is the client boundary to the confidential compute cluster
// (the MPC eXecution Environment). The cluster itself is an external
// collaborator: this package only speaks its gateway protocol and never
// reimplements the secret-sharing substrate.
package mxe

import (
	"context"
	"crypto/ed25519"
	"errors"

	"evalys-gmpc/internal/domain"
)

// ErrSubmissionRejected is returned when the cluster refuses a submission
// (malformed ciphertext or unknown circuit). Never retried.
var ErrSubmissionRejected = errors.New("submission rejected")

// ErrResultNotAvailable is returned by FetchResult before the computation
// has completed.
var ErrResultNotAvailable = errors.New("result not available")

// ComputationResult is the completed output of one computation: the sealed
// plan bytes plus the attestation receipt.
type ComputationResult struct {
	EncryptedOutput []byte
	Receipt         domain.ComputationReceipt
}

// ComputeClient is the cluster boundary used by the orchestrator.
// Implementations: HTTPClient (gateway JSON-RPC) and stub.Cluster (tests).
type ComputeClient interface {
	// Submit queues a computation over the sealed input and returns the
	// cluster-assigned computation id (a base58 account key).
	Submit(ctx context.Context, circuit domain.CircuitID, encryptedInput []byte) (string, error)

	// PollStatus reports the current computation status.
	PollStatus(ctx context.Context, computationID string) (domain.ComputationStatus, error)

	// FetchResult returns the sealed output and receipt. Callable only once
	// the status is COMPLETED.
	FetchResult(ctx context.Context, computationID string) (*ComputationResult, error)

	// AuthorityKey returns the cluster's stable receipt-signing public key.
	AuthorityKey(ctx context.Context) (ed25519.PublicKey, error)
}
