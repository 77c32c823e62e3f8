package receipt

import (
	"strconv"
	"strings"
)

const (
	OrderAscending  = "asc"
	OrderDescending = "desc"

	// Sort key for records without a date.
	EpochDate = "1970-01-01"
)

// MODELS:

type LineItem struct {
	Description   string  `json:"description"`
	DescriptionEn string  `json:"description_en"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	Price         float64 `json:"price"`
}

type ExpenseRecord struct {
	ID       int64      `json:"id"`
	Merchant string     `json:"merchant"`
	Date     string     `json:"date"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
	Items    []LineItem `json:"items"`
}

// Clone returns a deep copy, the editing buffer must never alias the
// canonical collection.
func (r ExpenseRecord) Clone() ExpenseRecord {
	out := r
	out.Items = make([]LineItem, len(r.Items))
	copy(out.Items, r.Items)
	return out
}

// EditSession is the scratch copy of one record under active user edit,
// uncommitted until save. One session per identity.
type EditSession struct {
	RecordID int64
	Buffer   ExpenseRecord
}

// ExtractedReceipt is the raw shape returned by an Extractor before
// normalization. Zero numeric values count as missing, mirroring the
// model's omitted fields.
type ExtractedReceipt struct {
	Merchant string          `json:"merchant"`
	Date     string          `json:"date"`
	Total    float64         `json:"total"`
	Currency string          `json:"currency"`
	Items    []ExtractedItem `json:"items"`
}

type ExtractedItem struct {
	Description   string  `json:"description"`
	DescriptionEn string  `json:"description_en"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	Price         float64 `json:"price"`
}

// ToRecord normalizes an extraction into an ExpenseRecord: quantity defaults
// to 1, unit_price falls back to the line total, prices default to 0.
func (ex ExtractedReceipt) ToRecord(id int64) ExpenseRecord {
	record := ExpenseRecord{
		ID:       id,
		Merchant: ex.Merchant,
		Date:     ex.Date,
		Total:    ex.Total,
		Currency: ex.Currency,
		Items:    make([]LineItem, 0, len(ex.Items)),
	}
	for _, item := range ex.Items {
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		unitPrice := item.UnitPrice
		if unitPrice == 0 {
			unitPrice = item.Price
		}
		record.Items = append(record.Items, LineItem{
			Description:   item.Description,
			DescriptionEn: item.DescriptionEn,
			Quantity:      quantity,
			UnitPrice:     unitPrice,
			Price:         item.Price,
		})
	}
	return record
}

// RESPONSES:

type ExpenseListResponse struct {
	Records []ExpenseRecord
	Order   string
	Total   float64
	Symbol  string
}

// ParseAmount converts user form input to a number; unparsable input is
// coerced to 0.
func ParseAmount(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}
