package vision

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/blueclef/receiptify/internal/receipt"
	"github.com/blueclef/receiptify/logging"
	ocrspace "github.com/ranghetto/go_ocr_space"
)

// OCRSpaceExtractor is the fallback when no vision model is configured: OCR
// the image, then pull the fields out of raw text with regexes. It cannot
// produce line items or translations.
type OCRSpaceExtractor struct {
	config ocrspace.Config
}

func NewOCRSpaceExtractor(apiKey string) *OCRSpaceExtractor {
	return &OCRSpaceExtractor{
		config: ocrspace.InitConfig(apiKey, "eng", ocrspace.OCREngine2),
	}
}

func (o *OCRSpaceExtractor) ExtractReceipt(ctx context.Context, img []byte, contentType string) (receipt.ExtractedReceipt, error) {
	payload, mediaType, err := PrepareImage(img, contentType)
	if err != nil {
		return receipt.ExtractedReceipt{}, err
	}

	result, err := o.config.ParseFromBase64(DataURL(payload, mediaType))
	if err != nil {
		return receipt.ExtractedReceipt{}, fmt.Errorf("ocr request failed: %w", err)
	}

	rawText := result.JustText()
	logging.Logger.Debugf("ocr raw text: %s", rawText)
	if rawText == "" {
		return receipt.ExtractedReceipt{}, fmt.Errorf("ocr returned empty text")
	}
	return ExtractFromRawText(rawText), nil
}

var (
	amountRegex = regexp.MustCompile(`\d+(\.\d+)?`)
	symbolRegex = regexp.MustCompile(`[$€£¥₹₽₩₪₫₴₦₵₲₺₡₨៛฿₸₼]`)
	isoRegex    = regexp.MustCompile(`\b[A-Z]{3}\b`)
	dateRegex   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

var symbolToISO = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₩": "KRW",
	"₹": "INR",
	"₽": "RUB",
	"₺": "TRY",
	"฿": "THB",
	"₫": "VND",
	"₴": "UAH",
	"₪": "ILS",
	"₼": "AZN",
}

// ExtractFromRawText guesses receipt fields from OCR output. The grand total
// is taken as the largest amount on the page; merchant stays empty since raw
// text gives no reliable signal.
func ExtractFromRawText(rawText string) receipt.ExtractedReceipt {
	var extracted receipt.ExtractedReceipt

	extracted.Date = dateRegex.FindString(rawText)
	// Drop dates before the amount scan, otherwise the year wins as the
	// largest number on the page.
	scanText := dateRegex.ReplaceAllString(rawText, "")

	for _, match := range amountRegex.FindAllString(scanText, -1) {
		num, err := strconv.ParseFloat(match, 64)
		if err != nil {
			logging.Logger.Warnf("failed to convert ocr number %q to float64: %v", match, err)
			continue
		}
		if num > extracted.Total {
			extracted.Total = num
		}
	}

	if iso := isoRegex.FindString(rawText); iso != "" {
		extracted.Currency = iso
	} else if symbol := symbolRegex.FindString(rawText); symbol != "" {
		extracted.Currency = symbolToISO[symbol]
	}

	return extracted
}
