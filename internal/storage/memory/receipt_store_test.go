package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/storage"
)

func testReceipt(seed byte, timestamp int64) *domain.ComputationReceipt {
	r := &domain.ComputationReceipt{
		ComputationID: "comp-" + string('a'+rune(seed)),
		Timestamp:     timestamp,
		Status:        domain.StatusCompleted,
	}
	for i := range r.ReceiptID {
		r.ReceiptID[i] = seed
		r.ResultHash[i] = seed + 1
	}
	for i := range r.Signature {
		r.Signature[i] = seed + 2
	}
	return r
}

func TestReceiptStore_InsertAndGet(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(1, 1700000000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, r.ReceiptID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if *got != *r {
		t.Errorf("GetByID mismatch: got %+v, want %+v", got, r)
	}

	got, err = store.GetByComputationID(ctx, r.ComputationID)
	if err != nil {
		t.Fatalf("GetByComputationID failed: %v", err)
	}
	if got.ReceiptID != r.ReceiptID {
		t.Errorf("ReceiptID mismatch: got %x, want %x", got.ReceiptID, r.ReceiptID)
	}
}

func TestReceiptStore_DuplicateKey(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(1, 1700000000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	err := store.Insert(ctx, r)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestReceiptStore_DuplicateComputationID(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	first := testReceipt(1, 1700000000)
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	// Fresh receipt_id and timestamp, same computation: a replayed result.
	replay := testReceipt(2, 1700000060)
	replay.ComputationID = first.ComputationID

	err := store.Insert(ctx, replay)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByComputationID(ctx, first.ComputationID)
	if err != nil {
		t.Fatalf("GetByComputationID failed: %v", err)
	}
	if got.ReceiptID != first.ReceiptID {
		t.Error("rejected insert replaced the stored receipt")
	}
}

func TestReceiptStore_NotFound(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	var missing [32]byte
	missing[0] = 0xff
	if _, err := store.GetByID(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetByID: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByComputationID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetByComputationID: expected ErrNotFound, got %v", err)
	}
}

func TestReceiptStore_NilInsert(t *testing.T) {
	store := NewReceiptStore()
	if err := store.Insert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReceiptStore_GetByTimeRange(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	// Inserted out of order on purpose.
	for i, ts := range []int64{1700000300, 1700000100, 1700000200} {
		if err := store.Insert(ctx, testReceipt(byte(i+1), ts)); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	got, err := store.GetByTimeRange(ctx, 1700000100, 1700000200)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(got))
	}
	if got[0].Timestamp != 1700000100 || got[1].Timestamp != 1700000200 {
		t.Errorf("not ordered by timestamp: %d, %d", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestReceiptStore_CopyOnRead(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(1, 1700000000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, r.ReceiptID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	got.Timestamp = 0

	again, err := store.GetByID(ctx, r.ReceiptID)
	if err != nil {
		t.Fatalf("second GetByID failed: %v", err)
	}
	if again.Timestamp != 1700000000 {
		t.Error("mutating a read result leaked into the store")
	}
}

func TestReceiptStore_ConcurrentAccess(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := testReceipt(byte(i), 1700000000+int64(i))
			if err := store.Insert(ctx, r); err != nil {
				t.Errorf("Insert %d failed: %v", i, err)
			}
			if _, err := store.GetByID(ctx, r.ReceiptID); err != nil {
				t.Errorf("GetByID %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.GetByTimeRange(ctx, 0, 1800000000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 receipts, got %d", len(got))
	}
}
