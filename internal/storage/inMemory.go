package storage

import (
	"context"
	"encoding/json"
	"sync"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/identity"
	"github.com/blueclef/receiptify/internal/receipt"
)

// InMemoryStorage keeps snapshots as encoded JSON so load/save exercises the
// same round-trip the MySQL implementation does. Used by tests and when
// STORAGE_BACKEND=memory.
type InMemoryStorage struct {
	mu         sync.Mutex
	identities []identity.Identity
	snapshots  map[string][]byte
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		snapshots: make(map[string][]byte),
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func (inMem *InMemoryStorage) SaveIdentity(ctx context.Context, ident identity.Identity) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.identities {
		if existing.Token == ident.Token {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "The identity already exists.",
			}
		}
	}
	inMem.identities = append(inMem.identities, ident)
	return nil
}

func (inMem *InMemoryStorage) GetIdentityByToken(ctx context.Context, token string) (identity.Identity, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, ident := range inMem.identities {
		if ident.Token == token {
			return ident, nil
		}
	}
	return identity.Identity{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrAuth,
		Message: "Unknown identity token.",
	}
}

func (inMem *InMemoryStorage) DeleteIdentity(ctx context.Context, identityID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, ident := range inMem.identities {
		if ident.ID == identityID {
			inMem.identities = append(inMem.identities[:i], inMem.identities[i+1:]...)
			delete(inMem.snapshots, identityID)
			return nil
		}
	}
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "Identity not found.",
	}
}

func (inMem *InMemoryStorage) LoadRecords(ctx context.Context, identityID string) ([]receipt.ExpenseRecord, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	payload, ok := inMem.snapshots[identityID]
	if !ok {
		return []receipt.ExpenseRecord{}, nil
	}

	var records []receipt.ExpenseRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to load expenses, stored data is unreadable.",
		}
	}
	return records, nil
}

func (inMem *InMemoryStorage) SaveRecords(ctx context.Context, identityID string, records []receipt.ExpenseRecord) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if records == nil {
		records = []receipt.ExpenseRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save expenses, try again later.",
		}
	}
	inMem.snapshots[identityID] = payload
	return nil
}

// CorruptSnapshot overwrites an identity's stored payload with garbage.
// Test hook for the storage-read-corrupt path.
func (inMem *InMemoryStorage) CorruptSnapshot(identityID string) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()
	inMem.snapshots[identityID] = []byte("{not-json")
}
