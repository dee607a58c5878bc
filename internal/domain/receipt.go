package domain

// ComputationStatus is the cluster-reported state of a computation.
type ComputationStatus string

const (
	StatusPending   ComputationStatus = "PENDING"
	StatusCompleted ComputationStatus = "COMPLETED"
	StatusFailed    ComputationStatus = "FAILED"
)

// ComputationReceipt binds a computation's identity, its result hash, and the
// cluster attestation into one verifiable record. Created once by the cluster
// side of the protocol; never mutated after Status reaches COMPLETED.
type ComputationReceipt struct {
	ReceiptID     [32]byte          // derived: SHA-256 over the other fields
	ComputationID string            // base58 account key assigned by the cluster
	ResultHash    [32]byte          // SHA-256 of the canonical plan bytes
	Signature     [64]byte          // Ed25519 over computation_id_bytes || result_hash
	Timestamp     int64             // unix seconds at attestation
	Status        ComputationStatus // PENDING | COMPLETED | FAILED
}
