package receipt

import "testing"

func TestCurrencySymbol(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{code: "USD", expected: "$"},
		{code: "eur", expected: "€"},
		{code: " azn ", expected: "₼"},
		{code: "XYZ", expected: DefaultCurrencySymbol},
		{code: "", expected: DefaultCurrencySymbol},
	}

	for _, tt := range tests {
		if got := CurrencySymbol(tt.code); got != tt.expected {
			t.Errorf("CurrencySymbol(%q) = %q, want %q", tt.code, got, tt.expected)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		value    string
		expected float64
	}{
		{value: "12.5", expected: 12.5},
		{value: " 7 ", expected: 7},
		{value: "-3.25", expected: -3.25},
		{value: "abc", expected: 0},
		{value: "", expected: 0},
	}

	for _, tt := range tests {
		if got := ParseAmount(tt.value); got != tt.expected {
			t.Errorf("ParseAmount(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}
