package api

import (
	"errors"

	appErrors "github.com/blueclef/receiptify/errors"
	"github.com/blueclef/receiptify/internal/receipt"
)

// REQUESTS START:

type EditFieldRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type EditItemRequest struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// REQUESTS END:

// RESPONSES:

type IdentityResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type LineItemResponse struct {
	Description   string  `json:"description"`
	DescriptionEn string  `json:"description_en"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	Price         float64 `json:"price"`
}

type ExpenseItem struct {
	ID       int64              `json:"id"`
	Merchant string             `json:"merchant"`
	Date     string             `json:"date"`
	Total    float64            `json:"total"`
	Currency string             `json:"currency"`
	Symbol   string             `json:"symbol"`
	Items    []LineItemResponse `json:"items"`
}

type ListExpensesResponse struct {
	Expenses []ExpenseItem `json:"expenses"`
	Order    string        `json:"order"`
	Total    float64       `json:"total"`
	Symbol   string        `json:"symbol"`
}

type IngestResponse struct {
	Message string      `json:"message"`
	Expense ExpenseItem `json:"expense"`
}

type EditSessionResponse struct {
	EditingID int64       `json:"editing_id"`
	Buffer    ExpenseItem `json:"buffer"`
}

func httpStatusFromError(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		return 404 // not found
	case errors.Is(err, appErrors.ErrInvalidInput):
		return 400 // bad request
	case errors.Is(err, appErrors.ErrAuth):
		return 401 // unauthorized
	case errors.Is(err, appErrors.ErrAccessDenied):
		return 403 // access denied
	case errors.Is(err, appErrors.ErrConflict):
		return 409 // conflict
	default:
		return 500 //internal error
	}
}

// ExpenseToHttp applies the display defaults: merchant falls back to "N/A"
// and every record carries its currency symbol.
func ExpenseToHttp(record receipt.ExpenseRecord) ExpenseItem {
	merchant := record.Merchant
	if merchant == "" {
		merchant = "N/A"
	}

	items := make([]LineItemResponse, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, LineItemResponse{
			Description:   item.Description,
			DescriptionEn: item.DescriptionEn,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Price:         item.Price,
		})
	}

	return ExpenseItem{
		ID:       record.ID,
		Merchant: merchant,
		Date:     record.Date,
		Total:    record.Total,
		Currency: record.Currency,
		Symbol:   receipt.CurrencySymbol(record.Currency),
		Items:    items,
	}
}

// EditSessionToHttp carries the raw buffer values, no display defaults, so
// the edit form shows what is actually stored.
func EditSessionToHttp(session receipt.EditSession) EditSessionResponse {
	items := make([]LineItemResponse, 0, len(session.Buffer.Items))
	for _, item := range session.Buffer.Items {
		items = append(items, LineItemResponse{
			Description:   item.Description,
			DescriptionEn: item.DescriptionEn,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Price:         item.Price,
		})
	}
	return EditSessionResponse{
		EditingID: session.RecordID,
		Buffer: ExpenseItem{
			ID:       session.Buffer.ID,
			Merchant: session.Buffer.Merchant,
			Date:     session.Buffer.Date,
			Total:    session.Buffer.Total,
			Currency: session.Buffer.Currency,
			Symbol:   receipt.CurrencySymbol(session.Buffer.Currency),
			Items:    items,
		},
	}
}
