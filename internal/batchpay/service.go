package batchpay

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-pay/internal/invoices"
	"github.com/meridian-erp/meridian-pay/internal/terms"
)

// DiscountResolver resolves the early-payment discount for an invoice at a
// candidate payment date.
type DiscountResolver interface {
	CheckDiscount(ctx context.Context, inv invoices.Invoice, date time.Time) (terms.Discount, error)
}

// Store persists transient wizards for the duration of one user action.
type Store interface {
	Save(ctx context.Context, w Wizard) error
	Get(ctx context.Context, id uuid.UUID) (Wizard, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service drives the batch payment registration wizard.
type Service struct {
	invoices  invoices.Repository
	discounts DiscountResolver
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the wizard service.
func NewService(invoiceRepo invoices.Repository, discounts DiscountResolver, store Store, logger *slog.Logger) *Service {
	return &Service{
		invoices:  invoiceRepo,
		discounts: discounts,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateInput seeds a new wizard from a set of source records.
type CreateInput struct {
	SourceModel   string
	InvoiceIDs    []int64
	PaymentDate   time.Time // zero value defaults to today
	Communication string
	JournalID     int64
}

// discountVals is the field patch produced by resolveDiscount when a discount
// applies to a line.
type discountVals struct {
	applicable        bool
	amount            float64
	difference        float64
	handling          DifferenceHandling
	writeoffAccountID int64
	note              string
}

// resolveDiscount prepares line fields for an invoice paid at date. The
// discount applies when the wizard's current payment difference does not
// exceed the discount amount; a zero discount never applies.
func (s *Service) resolveDiscount(ctx context.Context, inv invoices.Invoice, date time.Time, currentDifference float64) (discountVals, terms.Discount, error) {
	d, err := s.discounts.CheckDiscount(ctx, inv, date)
	if err != nil {
		return discountVals{}, terms.Discount{}, err
	}
	vals := discountVals{}
	if d.Amount > 0 && currentDifference <= d.Amount {
		vals = discountVals{
			applicable:        true,
			amount:            math.Abs(inv.AmountResidual - d.Amount),
			difference:        d.Amount,
			handling:          HandlingReconcile,
			writeoffAccountID: d.WriteoffAccountID,
			note:              NoteEarlyPayDiscount,
		}
	}
	return vals, d, nil
}

// Create validates batch homogeneity and seeds one payment line per invoice.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wizard, error) {
	if input.SourceModel == "" || len(input.InvoiceIDs) == 0 {
		return Wizard{}, ErrMissingContext
	}
	if input.SourceModel != SourceModelMove {
		return Wizard{}, ErrWrongSourceModel
	}

	invs, err := s.invoices.GetByIDs(ctx, input.InvoiceIDs)
	if err != nil {
		return Wizard{}, err
	}

	first := invs[0]
	role := first.MoveType.PartnerRole()
	for _, inv := range invs {
		if inv.PaymentModeID != first.PaymentModeID {
			return Wizard{}, ErrMixedPaymentModes
		}
		if inv.State != invoices.StatePosted {
			return Wizard{}, ErrUnpostedInvoice
		}
		if inv.MoveType.PartnerRole() != role {
			return Wizard{}, ErrMixedDirections
		}
		if inv.Currency != first.Currency {
			return Wizard{}, ErrMixedCurrencies
		}
	}

	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	w := Wizard{
		ID:            uuid.New(),
		PaymentDate:   paymentDate,
		PartnerType:   role,
		PartnerID:     first.CommercialPartnerID,
		PaymentModeID: first.PaymentModeID,
		Currency:      first.Currency,
		IsCustomer:    role == invoices.RoleCustomer,
		Communication: input.Communication,
		JournalID:     input.JournalID,
		CreatedAt:     s.now(),
	}

	lines := make([]PaymentLine, 0, len(invs))
	total := 0.0
	for _, inv := range invs {
		vals, d, err := s.resolveDiscount(ctx, inv, paymentDate, w.PaymentDifference)
		if err != nil {
			return Wizard{}, err
		}

		var paymentAmount float64
		if d.EligibleAmount != 0 {
			paymentAmount = terms.Round(d.EligibleAmount - d.Amount)
		} else {
			paymentAmount = inv.AmountResidual
		}
		paymentDifference := d.Amount
		if paymentAmount <= 0 {
			paymentAmount = vals.amount
		}
		if d.Amount <= 0 {
			paymentDifference = vals.difference
		}

		handling := HandlingOpen
		if vals.applicable {
			handling = vals.handling
		}
		line := PaymentLine{
			InvoiceID:         inv.ID,
			PartnerID:         inv.PartnerID,
			BalanceAmount:     inv.AmountResidual,
			Amount:            paymentAmount,
			PaymentDifference: paymentDifference,
			Handling:          handling,
			WriteoffAccountID: vals.writeoffAccountID,
			Note:              vals.note,
		}
		collapseZeroDifference(&line)
		lines = append(lines, line)

		total += inv.AmountResidual * inv.MoveType.PaymentSign()
	}

	w.setLines(lines)
	w.Amount = math.Abs(total)
	w.PaymentType = PaymentOutbound
	if total > 0 {
		w.PaymentType = PaymentInbound
	}
	w.ChequeAmount = sumAmounts(lines)

	if err := s.store.Save(ctx, w); err != nil {
		return Wizard{}, err
	}
	s.logger.Info("batch wizard created",
		slog.String("wizard_id", w.ID.String()),
		slog.Int("lines", len(lines)),
		slog.String("payment_type", string(w.PaymentType)))
	return w, nil
}

// Get loads a wizard from the transient store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Wizard, error) {
	return s.store.Get(ctx, id)
}

// LineUpdate carries a single changed field and the trigger identity for
// re-evaluation.
type LineUpdate struct {
	Trigger       Trigger
	Amount        *float64
	Handling      *DifferenceHandling
	Difference    *float64
	ResetAutofill bool
}

// UpdateLine applies a field change to one payment line and re-derives
// consistent state for it.
func (s *Service) UpdateLine(ctx context.Context, wizardID uuid.UUID, invoiceID int64, upd LineUpdate) (Wizard, error) {
	w, err := s.store.Get(ctx, wizardID)
	if err != nil {
		return Wizard{}, err
	}
	idx := w.lineIndex(invoiceID)
	if idx < 0 {
		return Wizard{}, ErrLineNotFound
	}

	lines := w.Lines()
	line := &lines[idx]
	if upd.Amount != nil {
		line.Amount = *upd.Amount
	}
	if upd.Handling != nil {
		line.Handling = *upd.Handling
	}
	if upd.Difference != nil {
		line.PaymentDifference = *upd.Difference
	}

	switch upd.Trigger {
	case TriggerHandling, TriggerDifference:
		collapseZeroDifference(line)
	case TriggerAmount:
		if err := s.recomputeAmount(ctx, &w, line, upd.ResetAutofill); err != nil {
			return Wizard{}, err
		}
	default:
		return Wizard{}, ErrUnknownTrigger
	}

	w.setLines(lines)
	w.ChequeAmount = sumAmounts(lines)
	if err := s.store.Save(ctx, w); err != nil {
		return Wizard{}, err
	}
	return w, nil
}

// SetPaymentDate changes the target payment date and re-fills every line on
// the active side with the discount-adjusted amounts for the new date.
func (s *Service) SetPaymentDate(ctx context.Context, wizardID uuid.UUID, date time.Time) (Wizard, error) {
	if date.IsZero() {
		return Wizard{}, ErrNoPaymentDate
	}
	w, err := s.store.Get(ctx, wizardID)
	if err != nil {
		return Wizard{}, err
	}
	w.PaymentDate = date

	lines := w.Lines()
	for i := range lines {
		if err := s.recomputeAmount(ctx, &w, &lines[i], true); err != nil {
			return Wizard{}, err
		}
	}
	w.setLines(lines)
	w.ChequeAmount = sumAmounts(lines)

	if err := s.store.Save(ctx, w); err != nil {
		return Wizard{}, err
	}
	return w, nil
}

// AutoFill re-applies the discount logic to every line at the wizard's
// payment date and returns the follow-up register-payments action. The wizard
// is transient: handing back the action completes it, so the stored record is
// discarded rather than saved.
func (s *Service) AutoFill(ctx context.Context, wizardID uuid.UUID) (Wizard, Action, error) {
	w, err := s.store.Get(ctx, wizardID)
	if err != nil {
		return Wizard{}, Action{}, err
	}
	if w.PaymentDate.IsZero() {
		return Wizard{}, Action{}, ErrNoPaymentDate
	}

	lines := w.Lines()
	total := 0.0
	for i := range lines {
		line := &lines[i]
		inv, err := s.invoices.Get(ctx, line.InvoiceID)
		if err != nil {
			return Wizard{}, Action{}, err
		}
		vals, _, err := s.resolveDiscount(ctx, inv, w.PaymentDate, w.PaymentDifference)
		if err != nil {
			return Wizard{}, Action{}, err
		}
		if vals.applicable {
			line.Amount = vals.amount
			line.PaymentDifference = vals.difference
			line.Handling = vals.handling
			line.WriteoffAccountID = vals.writeoffAccountID
			line.Note = vals.note
		} else {
			line.Amount = line.BalanceAmount
			line.PaymentDifference = 0
			line.Handling = HandlingOpen
			line.WriteoffAccountID = 0
			line.Note = ""
		}
		collapseZeroDifference(line)
		total += line.Amount
	}
	w.setLines(lines)
	w.ChequeAmount = total

	if err := s.store.Delete(ctx, w.ID); err != nil {
		return Wizard{}, Action{}, err
	}
	s.logger.Info("batch wizard completed",
		slog.String("wizard_id", w.ID.String()),
		slog.Float64("cheque_amount", w.ChequeAmount))

	action := Action{
		Name:     "Batch Payments",
		WizardID: w.ID,
		Context: ActionContext{
			Reference: w.Communication,
			JournalID: w.JournalID,
		},
	}
	return w, action, nil
}

// recomputeAmount re-derives difference, handling, write-off and note after a
// proposed-amount change. With reset set, the amount itself is overwritten
// with the discount-adjusted gross first.
func (s *Service) recomputeAmount(ctx context.Context, w *Wizard, line *PaymentLine, reset bool) error {
	inv, err := s.invoices.Get(ctx, line.InvoiceID)
	if err != nil {
		return err
	}
	d, err := s.discounts.CheckDiscount(ctx, inv, w.PaymentDate)
	if err != nil {
		return err
	}

	if reset {
		line.Amount = terms.Round(d.EligibleAmount - d.Amount)
		if d.EligibleAmount == 0 {
			line.Amount = line.BalanceAmount
		}
	}

	dueOrBalance := terms.Round(line.BalanceAmount - line.Amount)
	if dueOrBalance <= d.Amount {
		line.Handling = HandlingReconcile
		line.WriteoffAccountID = 0
		line.Note = ""
		if dueOrBalance != 0 {
			overpayment := d.Amount - dueOrBalance
			line.PaymentDifference = terms.Round(d.Amount - overpayment)
			line.WriteoffAccountID = d.WriteoffAccountID
			line.Note = NoteEarlyPayDiscount
		} else {
			// Exact full payment: keep the foregone discount visible on the
			// line but post no write-off.
			line.PaymentDifference = d.Amount
		}
	} else {
		line.PaymentDifference = dueOrBalance
		line.Handling = HandlingOpen
		line.WriteoffAccountID = 0
		line.Note = ""
	}
	collapseZeroDifference(line)
	return nil
}

// collapseZeroDifference forces handling to open when there is nothing to
// reconcile. Holds the invariant: reconcile implies a nonzero difference.
func collapseZeroDifference(line *PaymentLine) {
	if line.Handling == HandlingReconcile && line.PaymentDifference == 0 {
		line.Handling = HandlingOpen
	}
	if line.Handling == "" {
		line.Handling = HandlingOpen
	}
}

func sumAmounts(lines []PaymentLine) float64 {
	total := 0.0
	for _, line := range lines {
		total += line.Amount
	}
	return terms.Round(total)
}
