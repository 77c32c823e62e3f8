package receipt

import "strings"

const DefaultCurrencySymbol = "$"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"RUB": "₽",
	"TRY": "₺",
	"THB": "฿",
	"VND": "₫",
	"UAH": "₴",
	"ILS": "₪",
	"AZN": "₼",
}

// CurrencySymbol maps an ISO code to a display symbol; unrecognized or empty
// codes get the default symbol.
func CurrencySymbol(code string) string {
	if symbol, ok := currencySymbols[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return symbol
	}
	return DefaultCurrencySymbol
}
