package util

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultCurrencySymbol = "Rs."

var printer = message.NewPrinter(language.English)

// FormatCurrency renders amount with two decimals and thousands grouping.
func FormatCurrency(amount float64, symbol string) string {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return symbol + "0.00"
	}
	return symbol + printer.Sprintf("%.2f", amount)
}
