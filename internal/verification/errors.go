package verification

import "errors"

// Verification failures, one sentinel per protocol check so callers can
// distinguish retryable from terminal conditions with errors.Is.
var (
	// ErrComputationMismatch: the receipt is bound to a different computation
	// than the one this session submitted. Terminal.
	ErrComputationMismatch = errors.New("receipt bound to different computation")

	// ErrNotReady: the receipt status is still PENDING. Retryable by the caller.
	ErrNotReady = errors.New("computation not ready")

	// ErrComputationFailed: the cluster reported the computation FAILED. Terminal.
	ErrComputationFailed = errors.New("computation failed")

	// ErrResultTampered: the decrypted plan does not hash to the receipt's
	// result_hash. Terminal; the plan must be discarded.
	ErrResultTampered = errors.New("result hash mismatch")

	// ErrInvalidSignature: the attestation does not verify under the cluster
	// authority key. Terminal.
	ErrInvalidSignature = errors.New("invalid attestation signature")

	// ErrReceiptIDMismatch: the carried receipt_id is not the digest of the
	// receipt's other fields. Terminal.
	ErrReceiptIDMismatch = errors.New("receipt id mismatch")

	// ErrStaleOrFutureReceipt: the receipt timestamp falls outside
	// [submission_time, verification_time + skew_bound]. Terminal.
	ErrStaleOrFutureReceipt = errors.New("receipt timestamp outside accepted window")
)
