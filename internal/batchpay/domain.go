// Package batchpay implements the batch payment registration wizard with
// early-payment discount handling.
package batchpay

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-pay/internal/invoices"
)

// SourceModelMove is the only record type the wizard accepts as source.
const SourceModelMove = "account.move"

// NoteEarlyPayDiscount is attached to lines whose amount was reduced by an
// early-payment discount.
const NoteEarlyPayDiscount = "Early Pay Discount"

// DifferenceHandling is the policy for an unpaid remainder on a line.
type DifferenceHandling string

const (
	// HandlingOpen keeps the difference as an open balance on the invoice.
	HandlingOpen DifferenceHandling = "open"
	// HandlingReconcile writes the difference off against an account.
	HandlingReconcile DifferenceHandling = "reconcile"
)

// PaymentType is the direction of the aggregate payment.
type PaymentType string

const (
	PaymentInbound  PaymentType = "inbound"
	PaymentOutbound PaymentType = "outbound"
)

// Trigger identifies which line field changed and drives re-evaluation.
type Trigger string

const (
	TriggerHandling   Trigger = "handling"
	TriggerDifference Trigger = "difference"
	TriggerAmount     Trigger = "amount"
)

// Validation failures surfaced to the user.
var (
	ErrMissingContext    = errors.New("batch action requires a source model and record ids")
	ErrWrongSourceModel  = errors.New("the expected model for this action is 'account.move'")
	ErrMixedPaymentModes = errors.New("you can only register payments for invoices with the same payment mode")
	ErrUnpostedInvoice   = errors.New("you can only register payments for open invoices")
	ErrMixedDirections   = errors.New("you cannot mix customer invoices and vendor bills in a single payment")
	ErrMixedCurrencies   = errors.New("in order to pay multiple invoices at once, they must use the same currency")
	ErrNoPaymentDate     = errors.New("please enter the payment date")
	ErrLineNotFound      = errors.New("payment line not found")
	ErrUnknownTrigger    = errors.New("unknown recompute trigger")
)

// PaymentLine is one per-invoice entry on the wizard. Lines live only as long
// as the wizard itself.
type PaymentLine struct {
	InvoiceID         int64              `json:"invoice_id"`
	PartnerID         int64              `json:"partner_id"`
	BalanceAmount     float64            `json:"balance_amount"`
	Amount            float64            `json:"amount"`
	PaymentDifference float64            `json:"payment_difference"`
	Handling          DifferenceHandling `json:"handling"`
	WriteoffAccountID int64              `json:"writeoff_account_id,omitempty"`
	Note              string             `json:"note,omitempty"`
}

// Wizard is the transient payment registration state for one user action.
type Wizard struct {
	ID                uuid.UUID             `json:"id"`
	PaymentDate       time.Time             `json:"payment_date"`
	Amount            float64               `json:"amount"`
	PaymentDifference float64               `json:"payment_difference"`
	ChequeAmount      float64               `json:"cheque_amount"`
	PaymentType       PaymentType           `json:"payment_type"`
	PartnerType       invoices.PartnerRole  `json:"partner_type"`
	PartnerID         int64                 `json:"partner_id"`
	PaymentModeID     int64                 `json:"payment_mode_id"`
	Currency          string                `json:"currency"`
	IsCustomer        bool                  `json:"is_customer"`
	CustomerLines     []PaymentLine         `json:"customer_lines,omitempty"`
	SupplierLines     []PaymentLine         `json:"supplier_lines,omitempty"`
	Communication     string                `json:"communication,omitempty"`
	JournalID         int64                 `json:"journal_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

// Lines returns the active side's payment lines.
func (w *Wizard) Lines() []PaymentLine {
	if w.IsCustomer {
		return w.CustomerLines
	}
	return w.SupplierLines
}

// setLines replaces the active side's payment lines.
func (w *Wizard) setLines(lines []PaymentLine) {
	if w.IsCustomer {
		w.CustomerLines = lines
	} else {
		w.SupplierLines = lines
	}
}

// lineIndex finds the active-side line for an invoice.
func (w *Wizard) lineIndex(invoiceID int64) int {
	for i, line := range w.Lines() {
		if line.InvoiceID == invoiceID {
			return i
		}
	}
	return -1
}

// Action describes the follow-up window to open after auto-fill.
type Action struct {
	Name     string        `json:"name"`
	WizardID uuid.UUID     `json:"wizard_id"`
	Context  ActionContext `json:"context"`
}

// ActionContext carries the payment reference and journal into the
// register-payments action.
type ActionContext struct {
	Reference string `json:"reference"`
	JournalID int64  `json:"journal_id"`
}
