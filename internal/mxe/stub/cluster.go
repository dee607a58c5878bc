// Package stub implements an in-process compute cluster for testing. It
// runs the same derivation rules the real circuits encode, so orchestrator
// and verification tests exercise genuine ciphertexts and genuinely signed
// receipts instead of canned fixtures.
package stub

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"evalys-gmpc/internal/cipher"
	"evalys-gmpc/internal/codec"
	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/engine"
	"evalys-gmpc/internal/mxe"
	"evalys-gmpc/internal/verification"
)

// Cluster implements mxe.ComputeClient in-process.
type Cluster struct {
	mu sync.Mutex

	sharedKey cipher.Key
	signer    ed25519.PrivateKey
	authority ed25519.PublicKey
	nextID    uint64
	now       func() int64

	computations map[string]*computation

	// PendingPolls is how many PollStatus calls report PENDING before a
	// computation completes. Zero completes immediately.
	PendingPolls int

	// FailAll makes every computation finish FAILED.
	FailAll bool

	// TamperOutput flips one byte of the sealed output after the receipt is
	// signed, so the decrypted plan no longer matches the result hash.
	TamperOutput bool

	// TamperReceiptID corrupts the carried receipt_id.
	TamperReceiptID bool

	// TimestampOverride, when non-zero, replaces the receipt timestamp.
	TimestampOverride int64
}

type computation struct {
	circuit      domain.CircuitID
	input        []byte
	pollsLeft    int
	done         bool
	failed       bool
	sealedOutput []byte
	receipt      domain.ComputationReceipt
}

// NewCluster creates a stub cluster with a fresh signing keypair.
func NewCluster(sharedKey cipher.Key, now func() int64) (*Cluster, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate authority key: %w", err)
	}
	return &Cluster{
		sharedKey:    sharedKey,
		signer:       priv,
		authority:    pub,
		now:          now,
		computations: make(map[string]*computation),
	}, nil
}

// newComputationID derives a deterministic 32-byte account key per
// submission, base58-encoded like the real gateway's.
func (c *Cluster) newComputationID() string {
	c.nextID++
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], c.nextID)
	h := sha256.Sum256(seed[:])
	return base58.Encode(h[:])
}

// Submit queues a computation. The ciphertext must decrypt and decode under
// the given circuit or the submission is rejected, like the gateway does.
func (c *Cluster) Submit(_ context.Context, circuit domain.CircuitID, encryptedInput []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plain, err := cipher.Open(c.sharedKey, encryptedInput)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mxe.ErrSubmissionRejected, err)
	}
	if _, err := codec.DecodeInput(circuit, plain); err != nil {
		return "", fmt.Errorf("%w: %v", mxe.ErrSubmissionRejected, err)
	}

	id := c.newComputationID()
	c.computations[id] = &computation{
		circuit:   circuit,
		input:     plain,
		pollsLeft: c.PendingPolls,
	}
	return id, nil
}

// PollStatus reports PENDING for the scripted number of polls, then runs
// the computation and reports its terminal status.
func (c *Cluster) PollStatus(_ context.Context, computationID string) (domain.ComputationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.computations[computationID]
	if !ok {
		return "", fmt.Errorf("unknown computation %s", computationID)
	}

	if !comp.done {
		if comp.pollsLeft > 0 {
			comp.pollsLeft--
			return domain.StatusPending, nil
		}
		if err := c.finish(computationID, comp); err != nil {
			return "", err
		}
	}

	if comp.failed {
		return domain.StatusFailed, nil
	}
	return domain.StatusCompleted, nil
}

// FetchResult returns the sealed output and receipt of a finished
// computation.
func (c *Cluster) FetchResult(_ context.Context, computationID string) (*mxe.ComputationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.computations[computationID]
	if !ok {
		return nil, fmt.Errorf("unknown computation %s", computationID)
	}
	if !comp.done || comp.pollsLeft > 0 {
		return nil, mxe.ErrResultNotAvailable
	}
	if comp.failed {
		receipt := comp.receipt
		return &mxe.ComputationResult{Receipt: receipt}, nil
	}

	out := make([]byte, len(comp.sealedOutput))
	copy(out, comp.sealedOutput)
	return &mxe.ComputationResult{EncryptedOutput: out, Receipt: comp.receipt}, nil
}

// AuthorityKey returns the stub's signing public key.
func (c *Cluster) AuthorityKey(_ context.Context) (ed25519.PublicKey, error) {
	return c.authority, nil
}

// Signer exposes the authority private key for tests that build receipts
// directly.
func (c *Cluster) Signer() ed25519.PrivateKey {
	return c.signer
}

// finish runs the circuit and seals the result. Caller holds the lock.
func (c *Cluster) finish(id string, comp *computation) error {
	comp.done = true

	timestamp := c.now()
	if c.TimestampOverride != 0 {
		timestamp = c.TimestampOverride
	}

	if c.FailAll {
		comp.failed = true
		comp.receipt = domain.ComputationReceipt{
			ComputationID: id,
			Timestamp:     timestamp,
			Status:        domain.StatusFailed,
		}
		return nil
	}

	in, err := codec.DecodeInput(comp.circuit, comp.input)
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	plan, err := engine.Derive(in)
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	planBytes, err := codec.EncodePlan(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	receipt, err := verification.BuildReceipt(c.signer, id, planBytes, timestamp)
	if err != nil {
		return fmt.Errorf("build receipt: %w", err)
	}
	comp.receipt = *receipt
	if c.TamperReceiptID {
		comp.receipt.ReceiptID[0] ^= 0xff
	}

	sealed, err := cipher.Seal(c.sharedKey, planBytes)
	if err != nil {
		return fmt.Errorf("seal output: %w", err)
	}
	if c.TamperOutput {
		sealed[len(sealed)-1] ^= 0xff
	}
	comp.sealedOutput = sealed
	return nil
}

var _ mxe.ComputeClient = (*Cluster)(nil)
