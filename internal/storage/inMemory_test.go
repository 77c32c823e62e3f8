package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/identity"
	"github.com/blueclef/receiptify/internal/receipt"
)

func TestInMemoryIdentityLifecycle(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	ident := identity.Identity{
		ID:        "id-1",
		Token:     "aabbccdd",
		CreatedAt: time.Now().UTC(),
	}

	if err := store.SaveIdentity(ctx, ident); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}

	if err := store.SaveIdentity(ctx, ident); err == nil {
		t.Error("Expected conflict for duplicate token")
	} else if !errors.Is(err, appErrors.ErrConflict) {
		t.Errorf("Got %v, want conflict", err)
	}

	got, err := store.GetIdentityByToken(ctx, ident.Token)
	if err != nil {
		t.Fatalf("GetIdentityByToken failed: %v", err)
	}
	if got.ID != ident.ID {
		t.Errorf("Got identity %q, want %q", got.ID, ident.ID)
	}

	if _, err := store.GetIdentityByToken(ctx, "unknown"); !errors.Is(err, appErrors.ErrAuth) {
		t.Errorf("Got %v, want auth error for unknown token", err)
	}

	if err := store.DeleteIdentity(ctx, ident.ID); err != nil {
		t.Fatalf("DeleteIdentity failed: %v", err)
	}
	if err := store.DeleteIdentity(ctx, ident.ID); !errors.Is(err, appErrors.ErrNotFound) {
		t.Errorf("Got %v, want not-found for second delete", err)
	}
}

func TestInMemoryRecordsRoundTrip(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()
	identityId := "id-1"

	records := []receipt.ExpenseRecord{
		{
			ID:       1700000000002,
			Merchant: "Beta Cafe",
			Date:     "2024-05-10",
			Total:    12.5,
			Currency: "EUR",
			Items: []receipt.LineItem{
				{Description: "kafe", DescriptionEn: "coffee", Quantity: 2, UnitPrice: 3, Price: 6},
				{Description: "tort", DescriptionEn: "cake", Quantity: 1, UnitPrice: 6.5, Price: 6.5},
			},
		},
		{
			ID:       1700000000001,
			Merchant: "Alpha Market",
			Total:    4,
			Currency: "USD",
		},
	}

	if err := store.SaveRecords(ctx, identityId, records); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	loaded, err := store.LoadRecords(ctx, identityId)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, records) {
		t.Errorf("Round-trip changed the records:\ngot  %+v\nwant %+v", loaded, records)
	}
}

func TestInMemoryLoadMissingIdentity(t *testing.T) {
	store := NewInMemoryStorage()

	loaded, err := store.LoadRecords(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected empty collection for unknown identity, got %d records", len(loaded))
	}
}

func TestInMemoryCorruptSnapshot(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()
	identityId := "id-1"

	if err := store.SaveRecords(ctx, identityId, []receipt.ExpenseRecord{{ID: 1, Merchant: "A"}}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}
	store.CorruptSnapshot(identityId)

	_, err := store.LoadRecords(ctx, identityId)
	if !errors.Is(err, appErrors.ErrInternal) {
		t.Errorf("Got %v, want internal error for corrupt payload", err)
	}
}

func TestInMemoryDeleteIdentityDropsSnapshot(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	ident := identity.Identity{ID: "id-1", Token: "tok-1"}
	if err := store.SaveIdentity(ctx, ident); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}
	if err := store.SaveRecords(ctx, ident.ID, []receipt.ExpenseRecord{{ID: 1}}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	if err := store.DeleteIdentity(ctx, ident.ID); err != nil {
		t.Fatalf("DeleteIdentity failed: %v", err)
	}

	loaded, err := store.LoadRecords(ctx, ident.ID)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Snapshot should be gone with the identity, got %d records", len(loaded))
	}
}
