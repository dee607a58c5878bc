// Package verification implements the receipt protocol: building signed
// computation receipts (the cluster side, used by the stub cluster and by
// tests) and verifying them (the client side). Verification is side-effect
// free and short-circuits on the first failing check, returning the sentinel
// for that check rather than an opaque boolean.
package verification

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/idhash"
)

// DefaultSkewBound is the accepted forward clock skew for receipt timestamps.
const DefaultSkewBound = 2 * time.Minute

// signingMessage is the byte string the cluster authority signs:
// raw computation account key bytes followed by the result hash.
func signingMessage(computationIDBytes []byte, resultHash [32]byte) []byte {
	msg := make([]byte, 0, len(computationIDBytes)+32)
	msg = append(msg, computationIDBytes...)
	msg = append(msg, resultHash[:]...)
	return msg
}

// decodeComputationID decodes a base58 computation account key.
func decodeComputationID(id string) ([]byte, error) {
	raw, err := base58.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("decode computation id: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("computation id is %d bytes, want 32", len(raw))
	}
	return raw, nil
}

// BuildReceipt assembles and signs a COMPLETED receipt for the canonical
// plan bytes. This is the cluster side of the protocol; clients only verify.
func BuildReceipt(signer ed25519.PrivateKey, computationID string, planBytes []byte, timestamp int64) (*domain.ComputationReceipt, error) {
	idBytes, err := decodeComputationID(computationID)
	if err != nil {
		return nil, err
	}

	resultHash := idhash.ResultHash(planBytes)

	var sig [64]byte
	copy(sig[:], ed25519.Sign(signer, signingMessage(idBytes, resultHash)))

	r := &domain.ComputationReceipt{
		ComputationID: computationID,
		ResultHash:    resultHash,
		Signature:     sig,
		Timestamp:     timestamp,
		Status:        domain.StatusCompleted,
	}
	r.ReceiptID = idhash.ReceiptID(r.ComputationID, r.ResultHash, r.Signature, r.Timestamp, r.Status)
	return r, nil
}

// Verifier checks computation receipts against the cluster authority key.
// Safe for concurrent use: the key and bounds are read-only after New.
type Verifier struct {
	authority ed25519.PublicKey
	skewBound time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithSkewBound sets the accepted forward clock skew.
func WithSkewBound(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.skewBound = d
	}
}

// WithClock overrides the verification clock. Used in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier for the given cluster authority key.
// The key must be a canonical ed25519 point; anything else is rejected here
// rather than at first use.
func NewVerifier(authority ed25519.PublicKey, opts ...VerifierOption) (*Verifier, error) {
	if len(authority) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("authority key is %d bytes, want %d", len(authority), ed25519.PublicKeySize)
	}
	if _, err := new(edwards25519.Point).SetBytes(authority); err != nil {
		return nil, fmt.Errorf("authority key is not a valid ed25519 point: %w", err)
	}

	v := &Verifier{
		authority: authority,
		skewBound: DefaultSkewBound,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify runs the ordered receipt checks against the decrypted plan bytes.
//
// Check order:
//  1. computation identity
//  2. status (PENDING and FAILED receipts carry no trusted result, so they
//     fail before any hash comparison)
//  3. result hash of the decrypted plan
//  4. attestation signature
//  5. receipt_id recomputation
//  6. timestamp window [submittedAt, now + skew_bound]
//
// The first failing check's sentinel is returned; nil means the plan can be
// trusted as the attested output of expectedComputationID.
func (v *Verifier) Verify(receipt *domain.ComputationReceipt, planBytes []byte, expectedComputationID string, submittedAt time.Time) error {
	if receipt.ComputationID != expectedComputationID {
		return fmt.Errorf("%w: receipt %s, expected %s", ErrComputationMismatch, receipt.ComputationID, expectedComputationID)
	}

	switch receipt.Status {
	case domain.StatusCompleted:
	case domain.StatusPending:
		return ErrNotReady
	case domain.StatusFailed:
		return ErrComputationFailed
	default:
		return fmt.Errorf("%w: unknown status %q", ErrComputationFailed, receipt.Status)
	}

	resultHash := idhash.ResultHash(planBytes)
	if !bytes.Equal(resultHash[:], receipt.ResultHash[:]) {
		return fmt.Errorf("%w: plan bytes hash to %x, receipt carries %x", ErrResultTampered, resultHash[:8], receipt.ResultHash[:8])
	}

	idBytes, err := decodeComputationID(receipt.ComputationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(v.authority, signingMessage(idBytes, receipt.ResultHash), receipt.Signature[:]) {
		return fmt.Errorf("%w: signature does not verify under authority key", ErrInvalidSignature)
	}

	wantID := idhash.ReceiptID(receipt.ComputationID, receipt.ResultHash, receipt.Signature, receipt.Timestamp, receipt.Status)
	if !bytes.Equal(wantID[:], receipt.ReceiptID[:]) {
		return fmt.Errorf("%w: recomputed %x, receipt carries %x", ErrReceiptIDMismatch, wantID[:8], receipt.ReceiptID[:8])
	}

	earliest := submittedAt.Unix()
	latest := v.now().Add(v.skewBound).Unix()
	if receipt.Timestamp < earliest || receipt.Timestamp > latest {
		return fmt.Errorf("%w: timestamp %d outside [%d, %d]", ErrStaleOrFutureReceipt, receipt.Timestamp, earliest, latest)
	}

	return nil
}
