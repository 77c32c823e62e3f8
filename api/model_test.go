package api

import (
	"fmt"
	"testing"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/receipt"
)

func TestHttpStatusFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "not found", err: appErrors.ErrorResponse{Code: appErrors.ErrNotFound, Message: "x"}, expected: 404},
		{name: "invalid input", err: appErrors.ErrorResponse{Code: appErrors.ErrInvalidInput, Message: "x"}, expected: 400},
		{name: "auth", err: appErrors.ErrorResponse{Code: appErrors.ErrAuth, Message: "x"}, expected: 401},
		{name: "conflict", err: appErrors.ErrorResponse{Code: appErrors.ErrConflict, Message: "x"}, expected: 409},
		{name: "wrapped", err: fmt.Errorf("outer: %w", appErrors.ErrorResponse{Code: appErrors.ErrNotFound, Message: "x"}), expected: 404},
		{name: "unknown", err: fmt.Errorf("boom"), expected: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := httpStatusFromError(tt.err); got != tt.expected {
				t.Errorf("Got %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestExpenseToHttp(t *testing.T) {
	record := receipt.ExpenseRecord{
		ID:       42,
		Date:     "2024-05-10",
		Total:    9.5,
		Currency: "EUR",
		Items:    []receipt.LineItem{{Description: "kafe", Quantity: 2, UnitPrice: 3, Price: 6}},
	}

	item := ExpenseToHttp(record)
	if item.Merchant != "N/A" {
		t.Errorf("Empty merchant should display as N/A, got %q", item.Merchant)
	}
	if item.Symbol != "€" {
		t.Errorf("Got symbol %q, want €", item.Symbol)
	}
	if len(item.Items) != 1 || item.Items[0].Quantity != 2 {
		t.Errorf("Line items not mapped: %+v", item.Items)
	}
}

func TestEditSessionToHttpKeepsRawValues(t *testing.T) {
	session := receipt.EditSession{
		RecordID: 42,
		Buffer:   receipt.ExpenseRecord{ID: 42, Merchant: ""},
	}

	resp := EditSessionToHttp(session)
	if resp.EditingID != 42 {
		t.Errorf("Got editing id %d, want 42", resp.EditingID)
	}
	if resp.Buffer.Merchant != "" {
		t.Errorf("Edit buffer must show raw values, got merchant %q", resp.Buffer.Merchant)
	}
}
