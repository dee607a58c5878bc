// Package idhash computes the deterministic content identifiers of the
// receipt protocol: result hashes over canonical plan bytes and receipt IDs
// over the remaining receipt fields.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"evalys-gmpc/internal/domain"
)

// ResultHash computes SHA256 over the canonical encoded plan bytes.
func ResultHash(planBytes []byte) [32]byte {
	return sha256.Sum256(planBytes)
}

// ReceiptID computes the deterministic receipt_id using SHA256.
// Formula: SHA256(computation_id|result_hash_hex|signature_hex|timestamp|status)
// over every receipt field except the ID itself, in fixed order. Recomputing
// it from a genuine receipt always reproduces the carried ID.
func ReceiptID(
	computationID string,
	resultHash [32]byte,
	signature [64]byte,
	timestamp int64,
	status domain.ComputationStatus,
) [32]byte {
	data := fmt.Sprintf("%s|%s|%s|%d|%s",
		computationID,
		hex.EncodeToString(resultHash[:]),
		hex.EncodeToString(signature[:]),
		timestamp,
		string(status),
	)
	return sha256.Sum256([]byte(data))
}
