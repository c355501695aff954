// Package money formats decimal amounts for API payloads and logs.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.Russian)

// FormatRUB renders an amount the way the admin console shows it: grouped
// digits, two decimals, non-breaking space before the ruble sign.
func FormatRUB(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return printer.Sprintf("%v ₽", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
