// Package terms owns payment terms and their early-payment discount rule.
package terms

import "time"

// PaymentTerm describes payment conditions attached to an invoice.
// A term with DiscountPercent > 0 grants an early-payment discount when the
// payment happens within DiscountDays of the invoice date.
type PaymentTerm struct {
	ID                int64
	Name              string
	DiscountPercent   float64
	DiscountDays      int
	WriteoffAccountID int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Discount is the result of evaluating a term against an invoice and a
// candidate payment date. A zero Amount means no discount applies.
type Discount struct {
	Amount            float64
	WriteoffAccountID int64
	EligibleAmount    float64
}

// Applies reports whether the term grants a discount for a payment made on
// paymentDate against an invoice issued on invoiceDate.
func (t PaymentTerm) Applies(invoiceDate, paymentDate time.Time) bool {
	if t.DiscountPercent <= 0 {
		return false
	}
	deadline := invoiceDate.AddDate(0, 0, t.DiscountDays)
	return !truncateDay(paymentDate).After(truncateDay(deadline))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
