package receipt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/identity"
	"github.com/blueclef/receiptify/logging"
	"github.com/google/uuid"
)

const (
	MAX_MERCHANT_LENGTH = 255
	MAX_CURRENCY_LENGTH = 16
	MAX_ITEMS_PER_RECORD = 200

	ingestFailedMessage = "Failed to process receipt, please try again."
)

// ReceiptTracker owns the canonical in-memory expense collections, one per
// identity, and writes every mutation through to storage unconditionally.
type ReceiptTracker struct {
	storage     Storage
	extractor   Extractor
	StorageType string

	mu      sync.Mutex
	ledgers map[string]*ledgerState
	lastID  int64
}

type ledgerState struct {
	records []ExpenseRecord
	editing *EditSession
}

type Storage interface {
	SaveIdentity(ctx context.Context, ident identity.Identity) error
	GetIdentityByToken(ctx context.Context, token string) (identity.Identity, error)
	DeleteIdentity(ctx context.Context, identityID string) error
	LoadRecords(ctx context.Context, identityID string) ([]ExpenseRecord, error)
	SaveRecords(ctx context.Context, identityID string, records []ExpenseRecord) error
	GetStorageType() string
}

// Extractor turns a receipt image into a structured extraction. The call
// suspends for the whole network round-trip and offers no cancellation
// beyond the request context.
type Extractor interface {
	ExtractReceipt(ctx context.Context, image []byte, contentType string) (ExtractedReceipt, error)
}

func NewReceiptTracker(s Storage, e Extractor) ReceiptTracker {
	return ReceiptTracker{
		storage:     s,
		extractor:   e,
		StorageType: s.GetStorageType(),
		ledgers:     make(map[string]*ledgerState),
	}
}

// RegisterIdentity creates and persists a fresh identity and returns its token.
func (rt *ReceiptTracker) RegisterIdentity(ctx context.Context) (string, error) {
	token, err := identity.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate identity: %w", err)
	}

	ident := identity.Identity{
		ID:        uuid.New().String(),
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}

	if err := rt.storage.SaveIdentity(ctx, ident); err != nil {
		return "", fmt.Errorf("failed to save identity: %w", err)
	}
	return token, nil
}

// ResolveIdentity maps a presented token to an identity id.
func (rt *ReceiptTracker) ResolveIdentity(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", appErrors.ErrorResponse{
			Code:    appErrors.ErrAuth,
			Message: "Identity token is required.",
		}
	}
	ident, err := rt.storage.GetIdentityByToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity: %w", err)
	}
	return ident.ID, nil
}

// RemoveIdentity deletes the identity, its persisted snapshot and any
// in-memory state.
func (rt *ReceiptTracker) RemoveIdentity(ctx context.Context, identityID string) error {
	if err := rt.storage.DeleteIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	rt.mu.Lock()
	delete(rt.ledgers, identityID)
	rt.mu.Unlock()
	return nil
}

// ledger returns the in-memory state for an identity, loading it from
// storage on first touch. A corrupt snapshot surfaces an error once and
// leaves the collection empty.
func (rt *ReceiptTracker) ledger(ctx context.Context, identityID string) (*ledgerState, error) {
	if state, ok := rt.ledgers[identityID]; ok {
		return state, nil
	}

	records, err := rt.storage.LoadRecords(ctx, identityID)
	state := &ledgerState{records: records}
	rt.ledgers[identityID] = state
	if err != nil {
		state.records = nil
		return state, fmt.Errorf("failed to load expenses: %w", err)
	}
	return state, nil
}

// writeThrough persists the full collection snapshot. On failure the
// in-memory change is kept; memory and storage diverge until a later
// successful write.
func (rt *ReceiptTracker) writeThrough(ctx context.Context, identityID string, state *ledgerState) error {
	if err := rt.storage.SaveRecords(ctx, identityID, state.records); err != nil {
		return fmt.Errorf("failed to save expenses: %w", err)
	}
	return nil
}

// nextRecordID hands out time-based ids, bumped past the previous one when
// two ingestions land on the same millisecond.
func (rt *ReceiptTracker) nextRecordID() int64 {
	id := time.Now().UnixMilli()
	if id <= rt.lastID {
		id = rt.lastID + 1
	}
	rt.lastID = id
	return id
}

// IngestReceipt runs the full pipeline: id assignment, extraction,
// normalization, insert, write-through. The id is taken when the upload is
// dispatched and the record slots in front of every earlier ingestion, so
// concurrent uploads keep most-recently-ingested-first order no matter
// which response lands first. The extraction round-trip itself is not
// serialized.
func (rt *ReceiptTracker) IngestReceipt(ctx context.Context, identityID string, image []byte, contentType string) (ExpenseRecord, error) {
	if len(image) == 0 {
		return ExpenseRecord{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Receipt image is empty.",
		}
	}

	rt.mu.Lock()
	recordID := rt.nextRecordID()
	rt.mu.Unlock()

	extracted, err := rt.extractor.ExtractReceipt(ctx, image, contentType)
	if err != nil {
		logging.Logger.Errorf("receipt extraction failed: %v", err)
		return ExpenseRecord{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: ingestFailedMessage,
		}
	}
	if len(extracted.Items) > MAX_ITEMS_PER_RECORD {
		extracted.Items = extracted.Items[:MAX_ITEMS_PER_RECORD]
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		logging.Logger.Warnf("ingesting into a fresh collection: %v", err)
	}

	record := extracted.ToRecord(recordID)
	state.records = insertByRecency(state.records, record)

	if err := rt.writeThrough(ctx, identityID, state); err != nil {
		return record, err
	}
	return record, nil
}

// insertByRecency places a record in front of every record with a smaller
// (older) id. With sequential uploads this is a plain prepend.
func insertByRecency(records []ExpenseRecord, record ExpenseRecord) []ExpenseRecord {
	at := len(records)
	for i, existing := range records {
		if existing.ID < record.ID {
			at = i
			break
		}
	}
	out := append(records[:at:at], record)
	return append(out, records[at:]...)
}

// ListExpenses returns a sorted display copy plus the aggregate total. The
// sort is computed fresh from the canonical collection and never reorders
// storage.
func (rt *ReceiptTracker) ListExpenses(ctx context.Context, identityID string, order string) (ExpenseListResponse, error) {
	if order != OrderDescending {
		order = OrderAscending
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return ExpenseListResponse{Order: order, Symbol: DefaultCurrencySymbol}, err
	}

	view := make([]ExpenseRecord, len(state.records))
	for i, record := range state.records {
		view[i] = record.Clone()
	}
	sortByDate(view, order)

	return ExpenseListResponse{
		Records: view,
		Order:   order,
		Total:   aggregateTotal(state.records),
		Symbol:  DefaultCurrencySymbol,
	}, nil
}

func sortByDate(records []ExpenseRecord, order string) {
	sort.SliceStable(records, func(i, j int) bool {
		a := parseDate(records[i].Date)
		b := parseDate(records[j].Date)
		if order == OrderDescending {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func parseDate(date string) time.Time {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		// Missing or malformed dates sort as epoch start.
		return time.Unix(0, 0).UTC()
	}
	return t
}

// aggregateTotal sums record totals with no currency conversion; mixed
// currencies are summed as-is and shown under one symbol.
func aggregateTotal(records []ExpenseRecord) float64 {
	var sum float64
	for _, record := range records {
		sum += record.Total
	}
	return sum
}

// BeginEdit deep-copies the target record into the identity's editing
// buffer. An already-open session is replaced, last writer wins.
func (rt *ReceiptTracker) BeginEdit(ctx context.Context, identityID string, recordID int64) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}

	for _, record := range state.records {
		if record.ID == recordID {
			if state.editing != nil {
				logging.Logger.Warnf("replacing open edit session for record %d with record %d", state.editing.RecordID, recordID)
			}
			state.editing = &EditSession{RecordID: recordID, Buffer: record.Clone()}
			return *state.editing, nil
		}
	}
	return EditSession{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "Expense not found.",
	}
}

// CurrentEdit returns the current editing buffer, if any.
func (rt *ReceiptTracker) CurrentEdit(ctx context.Context, identityID string) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}
	return *session, nil
}

func (rt *ReceiptTracker) openSession(ctx context.Context, identityID string) (*EditSession, error) {
	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if state.editing == nil {
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "No expense is being edited.",
		}
	}
	return state.editing, nil
}

// EditField updates one scalar field of the editing buffer. Numeric input
// that fails to parse is coerced to 0.
func (rt *ReceiptTracker) EditField(ctx context.Context, identityID string, name string, value string) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}

	switch name {
	case "merchant":
		if len(value) > MAX_MERCHANT_LENGTH {
			return EditSession{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Merchant name so long, maximum length is %d", MAX_MERCHANT_LENGTH),
			}
		}
		session.Buffer.Merchant = value
	case "date":
		session.Buffer.Date = value
	case "total":
		session.Buffer.Total = ParseAmount(value)
	case "currency":
		if len(value) > MAX_CURRENCY_LENGTH {
			return EditSession{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Currency so long, maximum length is %d", MAX_CURRENCY_LENGTH),
			}
		}
		session.Buffer.Currency = value
	default:
		return EditSession{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Unknown expense field: %s", name),
		}
	}
	return *session, nil
}

// EditItem updates one field of one line item in the editing buffer.
func (rt *ReceiptTracker) EditItem(ctx context.Context, identityID string, index int, name string, value string) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}
	if index < 0 || index >= len(session.Buffer.Items) {
		return EditSession{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Item index out of range: %d", index),
		}
	}

	item := &session.Buffer.Items[index]
	switch name {
	case "description":
		item.Description = value
	case "description_en":
		item.DescriptionEn = value
	case "quantity":
		item.Quantity = ParseAmount(value)
	case "unit_price":
		item.UnitPrice = ParseAmount(value)
	case "price":
		item.Price = ParseAmount(value)
	default:
		return EditSession{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Unknown item field: %s", name),
		}
	}
	return *session, nil
}

// AddItem appends a blank line item to the editing buffer.
func (rt *ReceiptTracker) AddItem(ctx context.Context, identityID string) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}
	if len(session.Buffer.Items) >= MAX_ITEMS_PER_RECORD {
		return EditSession{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Maximum item count per expense is: %d", MAX_ITEMS_PER_RECORD),
		}
	}
	session.Buffer.Items = append(session.Buffer.Items, LineItem{Quantity: 1})
	return *session, nil
}

// RemoveItem removes the line item at the given position from the buffer.
func (rt *ReceiptTracker) RemoveItem(ctx context.Context, identityID string, index int) (EditSession, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return EditSession{}, err
	}
	if index < 0 || index >= len(session.Buffer.Items) {
		return EditSession{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Item index out of range: %d", index),
		}
	}
	session.Buffer.Items = append(session.Buffer.Items[:index], session.Buffer.Items[index+1:]...)
	return *session, nil
}

// CommitEdit replaces the canonical record matching the buffer's id with the
// buffer and clears the session. Other records are untouched.
func (rt *ReceiptTracker) CommitEdit(ctx context.Context, identityID string) (ExpenseRecord, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	session, err := rt.openSession(ctx, identityID)
	if err != nil {
		return ExpenseRecord{}, err
	}

	state := rt.ledgers[identityID]
	for i, record := range state.records {
		if record.ID == session.RecordID {
			state.records[i] = session.Buffer.Clone()
			committed := state.records[i]
			state.editing = nil
			if err := rt.writeThrough(ctx, identityID, state); err != nil {
				return committed, err
			}
			return committed, nil
		}
	}

	// The record was deleted while the buffer was open; the buffer is stale.
	state.editing = nil
	return ExpenseRecord{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "Expense not found.",
	}
}

// CancelEdit discards the editing buffer without touching the collection.
func (rt *ReceiptTracker) CancelEdit(ctx context.Context, identityID string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return err
	}
	state.editing = nil
	return nil
}

// DeleteExpense removes exactly the record with the matching id and writes
// through. Confirmation is the caller's gate; there is no undo.
func (rt *ReceiptTracker) DeleteExpense(ctx context.Context, identityID string, recordID int64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return err
	}

	for i, record := range state.records {
		if record.ID == recordID {
			state.records = append(state.records[:i], state.records[i+1:]...)
			return rt.writeThrough(ctx, identityID, state)
		}
	}
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "Expense not found.",
	}
}

// ExportExpenses returns a snapshot copy of the canonical collection in
// storage order.
func (rt *ReceiptTracker) ExportExpenses(ctx context.Context, identityID string) ([]ExpenseRecord, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	state, err := rt.ledger(ctx, identityID)
	if err != nil {
		return nil, err
	}
	out := make([]ExpenseRecord, len(state.records))
	for i, record := range state.records {
		out[i] = record.Clone()
	}
	return out, nil
}
