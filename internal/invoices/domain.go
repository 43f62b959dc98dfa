package invoices

import (
	"time"
)

// MoveType enumerates invoice directions.
type MoveType string

const (
	MoveCustomerInvoice MoveType = "out_invoice"
	MoveCustomerRefund  MoveType = "out_refund"
	MoveVendorBill      MoveType = "in_invoice"
	MoveVendorRefund    MoveType = "in_refund"
)

// PartnerRole enumerates the counterparty side of an invoice.
type PartnerRole string

const (
	RoleCustomer PartnerRole = "customer"
	RoleSupplier PartnerRole = "supplier"
)

// InvoiceState enumerates invoice lifecycle states.
type InvoiceState string

const (
	StateDraft     InvoiceState = "draft"
	StatePosted    InvoiceState = "posted"
	StateCancelled InvoiceState = "cancel"
)

// PartnerRole maps the move type to the counterparty role.
func (t MoveType) PartnerRole() PartnerRole {
	switch t {
	case MoveCustomerInvoice, MoveCustomerRefund:
		return RoleCustomer
	default:
		return RoleSupplier
	}
}

// PaymentSign reports whether money comes in (+1) or goes out (-1).
// Invoice residuals are unsigned, so direction is derived from the move type.
func (t MoveType) PaymentSign() float64 {
	switch t {
	case MoveCustomerInvoice, MoveVendorRefund:
		return 1
	default:
		return -1
	}
}

// Invoice is the read model for an open accounting document.
type Invoice struct {
	ID                  int64
	Number              string
	PartnerID           int64
	CommercialPartnerID int64
	MoveType            MoveType
	State               InvoiceState
	PaymentModeID       int64
	Currency            string
	AmountResidual      float64
	PaymentTermID       *int64
	InvoiceDate         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
