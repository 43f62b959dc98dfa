package batchpay

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with grouping separators for
// display fields, e.g. "12,345.67 USD".
func FormatAmount(currency string, v float64) string {
	return amountPrinter.Sprintf("%.2f %s", v, currency)
}
