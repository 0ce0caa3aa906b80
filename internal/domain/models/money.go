package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// zeroDecimalCurrencies have no minor unit
var zeroDecimalCurrencies = map[string]bool{
	"KRW": true,
	"JPY": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
}

// CurrencyScale returns the number of minor-unit digits for an ISO 4217 code
func CurrencyScale(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// RoundAmount rounds half away from zero to the currency's minor unit
func RoundAmount(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(CurrencyScale(currency))
}

// ApplyPercentage computes amount * rate / 100
func ApplyPercentage(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}
