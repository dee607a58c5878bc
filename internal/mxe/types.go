package mxe

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"evalys-gmpc/internal/domain"
)

// receiptWire is the JSON form of a receipt on the gateway protocol.
// Hashes and signatures travel hex-encoded; the computation id stays base58.
type receiptWire struct {
	ReceiptID     string `json:"receiptId"`
	ComputationID string `json:"computationId"`
	ResultHash    string `json:"resultHash"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
}

// toDomain decodes the wire receipt into its domain form.
func (w *receiptWire) toDomain() (domain.ComputationReceipt, error) {
	var r domain.ComputationReceipt
	r.ComputationID = w.ComputationID
	r.Timestamp = w.Timestamp
	r.Status = domain.ComputationStatus(w.Status)

	if err := decodeHex32(w.ReceiptID, &r.ReceiptID); err != nil {
		return r, fmt.Errorf("receiptId: %w", err)
	}
	if err := decodeHex32(w.ResultHash, &r.ResultHash); err != nil {
		return r, fmt.Errorf("resultHash: %w", err)
	}
	sig, err := hex.DecodeString(w.Signature)
	if err != nil {
		return r, fmt.Errorf("signature: %w", err)
	}
	if len(sig) != 64 {
		return r, fmt.Errorf("signature: %d bytes, want 64", len(sig))
	}
	copy(r.Signature[:], sig)
	return r, nil
}

// receiptToWire encodes a domain receipt for the gateway protocol.
func receiptToWire(r *domain.ComputationReceipt) receiptWire {
	return receiptWire{
		ReceiptID:     hex.EncodeToString(r.ReceiptID[:]),
		ComputationID: r.ComputationID,
		ResultHash:    hex.EncodeToString(r.ResultHash[:]),
		Signature:     hex.EncodeToString(r.Signature[:]),
		Timestamp:     r.Timestamp,
		Status:        string(r.Status),
	}
}

func decodeHex32(s string, out *[32]byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("%d bytes, want 32", len(raw))
	}
	copy(out[:], raw)
	return nil
}

// submitParams is the request payload for evalys_submitComputation.
type submitParams struct {
	Circuit    string `json:"circuit"`
	Ciphertext string `json:"ciphertext"` // base64
}

// submitResult is the response payload for evalys_submitComputation.
type submitResult struct {
	ComputationID string `json:"computationId"`
}

// statusResult is the response payload for evalys_getComputationStatus.
type statusResult struct {
	Status string `json:"status"`
}

// fetchResult is the response payload for evalys_getComputationResult.
type fetchResult struct {
	Ciphertext string      `json:"ciphertext"` // base64
	Receipt    receiptWire `json:"receipt"`
}

// authorityKeyResult is the response payload for evalys_getAuthorityKey.
type authorityKeyResult struct {
	PublicKey string `json:"publicKey"` // base64
}

func encodeCiphertext(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decodeCiphertext(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return raw, nil
}
