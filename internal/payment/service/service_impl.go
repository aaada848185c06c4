package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	currencydomain "github.com/smallbiznis/clinicbilling/internal/currency/domain"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"github.com/smallbiznis/clinicbilling/internal/observability/tracing"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/internal/validator"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	TenantSvc   tenantdomain.Service
	Resolver    currencydomain.Resolver
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	tenantSvc   tenantdomain.Service
	resolver    currencydomain.Resolver
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		tenantSvc:   p.TenantSvc,
		resolver:    p.Resolver,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (payment *paymentdomain.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "payment.create", attribute.String("method", req.Method))
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency := normalizeCurrency(req.Currency)
	if len(currency) != 3 {
		return nil, paymentdomain.ErrInvalidCurrency
	}
	method, err := paymentdomain.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Cheque != nil && method != paymentdomain.PaymentMethodCheque {
		return nil, paymentdomain.ErrChequeMethodMismatch
	}
	if method == paymentdomain.PaymentMethodCheque && req.Cheque == nil {
		return nil, paymentdomain.ErrChequeDetailRequired
	}

	invoiceIDs := make([]snowflake.ID, 0, len(req.Allocations))
	seen := make(map[snowflake.ID]struct{}, len(req.Allocations))
	for _, allocation := range req.Allocations {
		if !allocation.Amount.IsPositive() {
			return nil, paymentdomain.ErrInvalidAmount
		}
		if _, ok := seen[allocation.InvoiceID]; ok {
			return nil, paymentdomain.ErrDuplicateAllocation
		}
		seen[allocation.InvoiceID] = struct{}{}
		invoiceIDs = append(invoiceIDs, allocation.InvoiceID)
	}

	profile, err := s.tenantSvc.GetProfile(ctx, orgID)
	if err != nil {
		return nil, err
	}
	baseRate, err := s.resolver.GetRate(ctx, currency, profile.FunctionalCurrency)
	if err != nil {
		return nil, err
	}
	// Markup applies only to converted payments.
	finalRate := baseRate
	if currency != normalizeCurrency(profile.FunctionalCurrency) {
		finalRate, err = currencydomain.ApplyMarkup(baseRate, profile.MarkupType, profile.MarkupValue)
		if err != nil {
			return nil, err
		}
	}
	rates, err := s.allocationRates(ctx, orgID, currency, invoiceIDs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	status := paymentdomain.PaymentStatusCompleted
	if method == paymentdomain.PaymentMethodCheque {
		status = paymentdomain.PaymentStatusPending
	}

	payment = &paymentdomain.Payment{
		ID:                         s.genID.Generate(),
		OrgID:                      orgID,
		Method:                     method,
		Reference:                  nullableString(req.Reference),
		Amount:                     req.Amount,
		Currency:                   currency,
		FunctionalCurrency:         profile.FunctionalCurrency,
		BaseExchangeRate:           baseRate,
		FinalExchangeRate:          finalRate,
		AmountInFunctionalCurrency: req.Amount.Mul(finalRate).Round(invoicedomain.AmountScale),
		RefundedAmount:             decimal.Zero,
		Status:                     status,
		PaidAt:                     paidAt,
		Notes:                      nullableString(req.Notes),
		Version:                    1,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	if actor, ok := orgcontext.ActorFromContext(ctx); ok {
		payment.CreatedBy = &actor
	}

	var paidInvoices int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if req.Cheque != nil {
			cheque := &paymentdomain.ChequeDetail{
				ID:           s.genID.Generate(),
				OrgID:        orgID,
				PaymentID:    payment.ID,
				BankName:     strings.TrimSpace(req.Cheque.BankName),
				ChequeNumber: strings.TrimSpace(req.Cheque.ChequeNumber),
				IssueDate:    req.Cheque.IssueDate.UTC(),
				DueDate:      req.Cheque.DueDate,
				Status:       paymentdomain.ChequeStatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.repo.InsertCheque(ctx, tx, cheque); err != nil {
				return err
			}
			payment.ChequeDetail = cheque
		}

		for _, allocation := range req.Allocations {
			invoice, err := s.allocateLocked(ctx, tx, payment, allocation.InvoiceID, allocation.Amount, rates[allocation.InvoiceID], now)
			if err != nil {
				return err
			}
			if invoice.Status == invoicedomain.InvoiceStatusPaid {
				paidInvoices++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(ctx, string(method))
	for range paidInvoices {
		s.metrics.RecordInvoiceTransition(ctx, "paid")
	}
	s.emitAudit(ctx, "payment.created", payment, map[string]any{
		"allocations":    len(req.Allocations),
		"base_rate":      baseRate.String(),
		"final_rate":     finalRate.String(),
		"cheque_number":  chequeNumber(payment),
		"functional_amt": payment.AmountInFunctionalCurrency.String(),
	})
	logger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("method", string(method)),
		zap.String("currency", currency),
		zap.Int("allocations", len(req.Allocations)),
	)
	return s.GetByID(ctx, payment.ID)
}

func (s *Service) AllocateToInvoice(ctx context.Context, paymentID, invoiceID snowflake.ID, amount decimal.Decimal) (result *paymentdomain.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "payment.allocate")
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if paymentID == 0 {
		return nil, paymentdomain.ErrInvalidPaymentID
	}
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	// Rates resolve outside the transaction; the currencies involved never change.
	current, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	rates, err := s.allocationRates(ctx, orgID, current.Currency, []snowflake.ID{invoiceID})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var invoice *invoicedomain.Invoice
	var invoiceAmount decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		before := invoicePaid(payment, invoiceID)
		invoice, err = s.allocateLocked(ctx, tx, payment, invoiceID, amount, rates[invoiceID], now)
		if err != nil {
			return err
		}
		invoiceAmount = invoicePaid(payment, invoiceID).Sub(before)
		return s.touch(ctx, tx, payment, map[string]any{"updated_at": now})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentEvent(ctx, "allocated")
	if invoice.Status == invoicedomain.InvoiceStatusPaid {
		s.metrics.RecordInvoiceTransition(ctx, "paid")
	}
	result, err = s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, "payment.allocated", result, map[string]any{
		"invoice_id":     invoiceID.String(),
		"amount":         amount.String(),
		"invoice_amount": invoiceAmount.String(),
		"invoice_status": string(invoice.Status),
	})
	return result, nil
}

// allocateLocked applies amount of the locked payment to invoiceID. rate
// converts the payment currency into the invoice currency. Allocations on
// payment are updated in place.
func (s *Service) allocateLocked(
	ctx context.Context,
	tx *gorm.DB,
	payment *paymentdomain.Payment,
	invoiceID snowflake.ID,
	amount decimal.Decimal,
	rate decimal.Decimal,
	now time.Time,
) (*invoicedomain.Invoice, error) {
	if !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	if !payment.Allocatable() {
		return nil, paymentdomain.ErrPaymentNotAllocatable
	}
	if !rate.IsPositive() {
		return nil, currencydomain.ErrInvalidRate
	}
	if unallocated := payment.UnallocatedAmount(); amount.GreaterThan(unallocated) {
		return nil, ierr.WithError(paymentdomain.ErrInsufficientFunds).
			WithHintf("payment has %s %s unallocated", unallocated.String(), payment.Currency).
			Mark(ierr.ErrInvariantViolation)
	}

	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, payment.OrgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if !invoice.AcceptsPayment() {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}

	invoiceAmount := amount.Mul(rate).Round(invoicedomain.AmountScale)
	if balance := invoice.BalanceDue(); invoiceAmount.GreaterThan(balance) {
		return nil, ierr.WithError(paymentdomain.ErrExceedsInvoiceBalance).
			WithHintf("invoice balance due is %s %s", balance.String(), invoice.Currency).
			Mark(ierr.ErrInvariantViolation)
	}

	if err := s.applyInvoicePayment(ctx, tx, invoice, invoice.PaidAmount.Add(invoiceAmount), now); err != nil {
		return nil, err
	}

	if existing, ok := payment.Allocation(invoiceID); ok {
		existing.Amount = existing.Amount.Add(amount)
		existing.InvoiceAmount = existing.InvoiceAmount.Add(invoiceAmount)
		existing.ExchangeRate = rate
		existing.UpdatedAt = now
		if err := s.repo.UpdateAllocation(ctx, tx, existing.ID, map[string]any{
			"amount":         existing.Amount,
			"invoice_amount": existing.InvoiceAmount,
			"exchange_rate":  rate,
			"updated_at":     now,
		}); err != nil {
			return nil, err
		}
		replaceAllocation(payment, existing)
		return invoice, nil
	}

	allocation := paymentdomain.PaymentAllocation{
		ID:            s.genID.Generate(),
		OrgID:         payment.OrgID,
		PaymentID:     payment.ID,
		InvoiceID:     invoiceID,
		Amount:        amount,
		InvoiceAmount: invoiceAmount,
		ExchangeRate:  rate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertAllocation(ctx, tx, &allocation); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, paymentdomain.ErrConcurrentUpdate
		}
		return nil, err
	}
	payment.Allocations = append(payment.Allocations, allocation)
	return invoice, nil
}

func (s *Service) DeallocateFromInvoice(ctx context.Context, paymentID, invoiceID snowflake.ID, amount *decimal.Decimal) (result *paymentdomain.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "payment.deallocate")
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if paymentID == 0 {
		return nil, paymentdomain.ErrInvalidPaymentID
	}
	if amount != nil && !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	var released, invoiceReleased decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		allocation, ok := payment.Allocation(invoiceID)
		if !ok {
			return paymentdomain.ErrAllocationNotFound
		}

		released = allocation.Amount
		invoiceReleased = allocation.InvoiceAmount
		if amount != nil && !amount.Equal(allocation.Amount) {
			if amount.GreaterThan(allocation.Amount) {
				return ierr.WithError(paymentdomain.ErrExceedsAllocation).
					WithHintf("allocation holds %s %s", allocation.Amount.String(), payment.Currency).
					Mark(ierr.ErrInvariantViolation)
			}
			released = *amount
			invoiceReleased = allocation.InvoiceAmount.Mul(released).Div(allocation.Amount).Round(invoicedomain.AmountScale)
		}

		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		paid := invoice.PaidAmount.Sub(invoiceReleased)
		if paid.IsNegative() {
			return ierr.WithError(paymentdomain.ErrExceedsAllocation).
				WithHint("invoice paid amount would become negative").
				Mark(ierr.ErrInvariantViolation)
		}
		if err := s.applyInvoicePayment(ctx, tx, invoice, paid, now); err != nil {
			return err
		}

		if released.Equal(allocation.Amount) {
			if err := s.repo.DeleteAllocation(ctx, tx, allocation.ID); err != nil {
				return err
			}
		} else if err := s.repo.UpdateAllocation(ctx, tx, allocation.ID, map[string]any{
			"amount":         allocation.Amount.Sub(released),
			"invoice_amount": allocation.InvoiceAmount.Sub(invoiceReleased),
			"updated_at":     now,
		}); err != nil {
			return err
		}
		return s.touch(ctx, tx, payment, map[string]any{"updated_at": now})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentEvent(ctx, "deallocated")
	result, err = s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, "payment.deallocated", result, map[string]any{
		"invoice_id":     invoiceID.String(),
		"amount":         released.String(),
		"invoice_amount": invoiceReleased.String(),
	})
	return result, nil
}

// applyInvoicePayment stores the invoice's new paid amount and recomputes
// its status.
func (s *Service) applyInvoicePayment(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, paid decimal.Decimal, now time.Time) error {
	next := *invoice
	next.PaidAmount = paid
	status := invoicedomain.PaymentStatus(next, now)

	updates := map[string]any{
		"paid_amount": paid,
		"status":      status,
		"updated_at":  now,
	}
	if status == invoicedomain.InvoiceStatusPaid {
		if invoice.PaidAt == nil {
			updates["paid_at"] = now
			next.PaidAt = &now
		}
	} else if invoice.PaidAt != nil {
		updates["paid_at"] = nil
		next.PaidAt = nil
	}

	ok, err := s.invoiceRepo.UpdateGuarded(ctx, tx, invoice.OrgID, invoice.ID, invoice.Version, updates)
	if err != nil {
		return err
	}
	if !ok {
		return paymentdomain.ErrConcurrentUpdate
	}

	next.Status = status
	next.Version++
	*invoice = next
	return nil
}

// CancelPayment voids a payment that has no allocations and no refunds.
func (s *Service) CancelPayment(ctx context.Context, id snowflake.ID, reason string) (*paymentdomain.Payment, error) {
	reason = strings.TrimSpace(reason)
	payment, changed, err := s.mutate(ctx, id, func(tx *gorm.DB, payment *paymentdomain.Payment, now time.Time) (map[string]any, error) {
		switch payment.Status {
		case paymentdomain.PaymentStatusVoided:
			return nil, nil
		case paymentdomain.PaymentStatusRefunded:
			return nil, paymentdomain.ErrPaymentNotCancellable
		}
		if payment.RefundedAmount.IsPositive() {
			return nil, paymentdomain.ErrPaymentNotCancellable
		}
		if payment.AllocatedAmount().IsPositive() {
			return nil, paymentdomain.ErrPaymentHasAllocations
		}

		if cheque := payment.ChequeDetail; cheque != nil && cheque.Status == paymentdomain.ChequeStatusPending {
			if err := s.repo.UpdateCheque(ctx, tx, cheque.ID, map[string]any{
				"status":            paymentdomain.ChequeStatusCancelled,
				"status_changed_at": now,
				"updated_at":        now,
			}); err != nil {
				return nil, err
			}
		}
		return map[string]any{
			"status":      paymentdomain.PaymentStatusVoided,
			"void_reason": nullableString(reason),
			"voided_at":   now,
			"updated_at":  now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordPaymentEvent(ctx, "voided")
		s.emitAudit(ctx, "payment.voided", payment, map[string]any{"reason": reason})
	}
	return payment, nil
}

func (s *Service) RefundPayment(ctx context.Context, id snowflake.ID, reason string, amount *decimal.Decimal) (result *paymentdomain.Payment, err error) {
	ctx, span := tracing.StartSpan(ctx, "payment.refund")
	defer func() { tracing.EndSpan(span, err) }()

	if amount != nil && !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)

	var refund decimal.Decimal
	result, changed, err := s.mutate(ctx, id, func(_ *gorm.DB, payment *paymentdomain.Payment, now time.Time) (map[string]any, error) {
		if payment.Status != paymentdomain.PaymentStatusCompleted {
			return nil, paymentdomain.ErrPaymentNotRefundable
		}
		unallocated := payment.UnallocatedAmount()
		refund = unallocated
		if amount != nil {
			refund = *amount
		}
		if !refund.IsPositive() || refund.GreaterThan(unallocated) {
			return nil, ierr.WithError(paymentdomain.ErrRefundExceedsUnallocated).
				WithHintf("payment has %s %s unallocated; deallocate invoices first", unallocated.String(), payment.Currency).
				Mark(ierr.ErrInvariantViolation)
		}

		refunded := payment.RefundedAmount.Add(refund)
		updates := map[string]any{
			"refunded_amount": refunded,
			"refund_reason":   nullableString(reason),
			"refunded_at":     now,
			"updated_at":      now,
		}
		if refunded.Equal(payment.Amount) {
			updates["status"] = paymentdomain.PaymentStatusRefunded
		}
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordPaymentEvent(ctx, "refunded")
		s.emitAudit(ctx, "payment.refunded", result, map[string]any{
			"amount": refund.String(),
			"reason": reason,
		})
	}
	return result, nil
}

// UpdateChequeStatus moves a pending cheque to Cleared, Bounced or
// Cancelled. Cleared completes the payment; the others fail it.
func (s *Service) UpdateChequeStatus(ctx context.Context, id snowflake.ID, status paymentdomain.ChequeStatus) (*paymentdomain.Payment, error) {
	status, err := paymentdomain.ParseChequeStatus(string(status))
	if err != nil {
		return nil, err
	}
	if status == paymentdomain.ChequeStatusPending {
		return nil, paymentdomain.ErrInvalidChequeTransition
	}

	var previous paymentdomain.ChequeStatus
	payment, changed, err := s.mutate(ctx, id, func(tx *gorm.DB, payment *paymentdomain.Payment, now time.Time) (map[string]any, error) {
		cheque := payment.ChequeDetail
		if cheque == nil {
			return nil, paymentdomain.ErrChequeNotFound
		}
		if cheque.Status == status {
			return nil, nil
		}
		if cheque.Status != paymentdomain.ChequeStatusPending {
			return nil, ierr.WithError(paymentdomain.ErrInvalidChequeTransition).
				WithHintf("cheque is already %s", strings.ToLower(string(cheque.Status))).
				Mark(ierr.ErrInvariantViolation)
		}
		previous = cheque.Status

		if err := s.repo.UpdateCheque(ctx, tx, cheque.ID, map[string]any{
			"status":            status,
			"status_changed_at": now,
			"updated_at":        now,
		}); err != nil {
			return nil, err
		}

		updates := map[string]any{"updated_at": now}
		if payment.Status == paymentdomain.PaymentStatusPending {
			if status == paymentdomain.ChequeStatusCleared {
				updates["status"] = paymentdomain.PaymentStatusCompleted
			} else {
				updates["status"] = paymentdomain.PaymentStatusFailed
			}
		}
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordPaymentEvent(ctx, "cheque_"+strings.ToLower(string(status)))
		s.emitAudit(ctx, "payment.cheque_status_changed", payment, map[string]any{
			"from":          string(previous),
			"to":            string(status),
			"cheque_number": chequeNumber(payment),
		})
		if status == paymentdomain.ChequeStatusBounced {
			logger.WithContext(ctx, s.log).Warn("cheque bounced",
				zap.String("payment_id", payment.ID.String()),
				zap.String("allocated", payment.AllocatedAmount().String()),
			)
		}
	}
	return payment, nil
}

// mutate locks the payment and applies the updates returned by apply. A nil
// update map leaves the row untouched.
func (s *Service) mutate(
	ctx context.Context,
	id snowflake.ID,
	apply func(tx *gorm.DB, payment *paymentdomain.Payment, now time.Time) (map[string]any, error),
) (*paymentdomain.Payment, bool, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if id == 0 {
		return nil, false, paymentdomain.ErrInvalidPaymentID
	}

	var result *paymentdomain.Payment
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.lockPayment(ctx, tx, orgID, id)
		if err != nil {
			return err
		}

		updates, err := apply(tx, payment, s.clock.Now())
		if err != nil {
			return err
		}
		if updates != nil {
			if err := s.touch(ctx, tx, payment, updates); err != nil {
				return err
			}
			changed = true
		}

		result, err = s.repo.FindByID(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *Service) lockPayment(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) touch(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, updates map[string]any) error {
	ok, err := s.repo.UpdateGuarded(ctx, tx, payment.OrgID, payment.ID, payment.Version, updates)
	if err != nil {
		return err
	}
	if !ok {
		return paymentdomain.ErrConcurrentUpdate
	}
	payment.Version++
	return nil
}

// allocationRates resolves the payment-to-invoice rate for each invoice.
func (s *Service) allocationRates(ctx context.Context, orgID snowflake.ID, paymentCurrency string, invoiceIDs []snowflake.ID) (map[snowflake.ID]decimal.Decimal, error) {
	rates := make(map[snowflake.ID]decimal.Decimal, len(invoiceIDs))
	for _, invoiceID := range invoiceIDs {
		if invoiceID == 0 {
			return nil, invoicedomain.ErrInvalidInvoiceID
		}
		invoice, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, invoiceID)
		if err != nil {
			return nil, err
		}
		if invoice == nil {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		rate, err := s.resolver.GetRate(ctx, paymentCurrency, invoice.Currency)
		if err != nil {
			return nil, err
		}
		rates[invoiceID] = rate
	}
	return rates, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, paymentdomain.ErrInvalidPaymentID
	}
	payment, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	var cursor *paymentdomain.PaymentCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidPageToken
		}
		cursor = &paymentdomain.PaymentCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, paymentdomain.ListFilter{
		OrgID:  orgID,
		Status: req.Status,
		Method: req.Method,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, limit, func(item *paymentdomain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return paymentdomain.ListPaymentResponse{PageInfo: pageInfo, Payments: payments}, nil
}

func (s *Service) ListAllocationsByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.PaymentAllocation, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	return s.repo.ListAllocationsByInvoice(ctx, s.db, orgID, invoiceID)
}

func (s *Service) emitAudit(ctx context.Context, action string, payment *paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	metadata := map[string]any{
		"amount":      payment.Amount.String(),
		"currency":    payment.Currency,
		"method":      string(payment.Method),
		"status":      string(payment.Status),
		"unallocated": payment.UnallocatedAmount().String(),
	}
	if payment.Reference != nil {
		metadata["reference"] = *payment.Reference
	}
	for key, value := range extra {
		if key == "" || value == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := payment.ID.String()
	orgID := payment.OrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetPayment, &targetID, metadata)
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, paymentdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func invoicePaid(payment *paymentdomain.Payment, invoiceID snowflake.ID) decimal.Decimal {
	allocation, ok := payment.Allocation(invoiceID)
	if !ok {
		return decimal.Zero
	}
	return allocation.InvoiceAmount
}

func replaceAllocation(payment *paymentdomain.Payment, allocation paymentdomain.PaymentAllocation) {
	for i := range payment.Allocations {
		if payment.Allocations[i].ID == allocation.ID {
			payment.Allocations[i] = allocation
			return
		}
	}
}

func chequeNumber(payment *paymentdomain.Payment) string {
	if payment.ChequeDetail == nil {
		return ""
	}
	return payment.ChequeDetail.ChequeNumber
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
