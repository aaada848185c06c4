package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/invoice/format"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"github.com/smallbiznis/clinicbilling/internal/observability/tracing"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/internal/validator"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const insertSavepoint = "invoice_insert"

var one = decimal.NewFromInt(1)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   config.BillingConfigProvider
	Repo      invoicedomain.Repository
	TenantSvc tenantdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	billing   config.BillingConfigProvider
	repo      invoicedomain.Repository
	tenantSvc tenantdomain.Service
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		billing:   p.Billing,
		repo:      p.Repo,
		tenantSvc: p.TenantSvc,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) GenerateInvoice(ctx context.Context, req invoicedomain.GenerateInvoiceRequest) (invoice *invoicedomain.Invoice, err error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.generate", attribute.String("invoice_type", string(req.Type)))
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var genErr error
		invoice, created, genErr = s.generate(ctx, tx, orgID, req)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.metrics.RecordInvoiceGenerated(ctx, string(invoice.Type))
		s.emitAudit(ctx, "invoice.generated", invoice, nil)
	}
	return invoice, nil
}

func (s *Service) GenerateInvoiceWithTx(ctx context.Context, tx *gorm.DB, req invoicedomain.GenerateInvoiceRequest) (*invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoice, _, err := s.generate(ctx, tx, orgID, req)
	return invoice, err
}

// generate returns the invoice for req and whether this call created it.
func (s *Service) generate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req invoicedomain.GenerateInvoiceRequest) (*invoicedomain.Invoice, bool, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validator.ValidateRequest(req); err != nil {
		return nil, false, err
	}

	cfg := s.billing.Get()
	taxRate := cfg.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(one) {
		return nil, false, invoicedomain.ErrInvalidTaxRate
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, tx, orgID, req.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			if !sameBillingEvent(existing, req) {
				return nil, false, invoicedomain.ErrIdempotencyConflict
			}
			return existing, false, nil
		}
	}

	profile, err := s.tenantSvc.GetProfileTx(ctx, tx, orgID)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	dueDate := issueDate.AddDate(0, 0, cfg.PaymentTermDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}
	if dueDate.Before(issueDate) {
		return nil, false, invoicedomain.ErrInvalidDueDate
	}

	invoiceID := s.genID.Generate()
	items := make([]invoicedomain.InvoiceItem, 0, len(req.Items))
	subTotal := decimal.Zero
	for _, input := range req.Items {
		if input.UnitPrice.IsNegative() {
			return nil, false, ierr.WithError(invoicedomain.ErrInvalidItem).
				WithHintf("unit price of %q must not be negative", input.Description).
				Mark(ierr.ErrValidation)
		}
		if input.PeriodStart != nil && input.PeriodEnd != nil && !input.PeriodEnd.After(*input.PeriodStart) {
			return nil, false, ierr.WithError(invoicedomain.ErrInvalidItem).
				WithHintf("billing period of %q must end after it starts", input.Description).
				Mark(ierr.ErrValidation)
		}
		lineTotal := input.UnitPrice.Mul(decimal.NewFromInt(input.Quantity))
		subTotal = subTotal.Add(lineTotal)
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			InvoiceID:   invoiceID,
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			LineTotal:   lineTotal,
			PeriodStart: utcPtr(input.PeriodStart),
			PeriodEnd:   utcPtr(input.PeriodEnd),
			CreatedAt:   now,
		})
	}
	taxAmount := subTotal.Mul(taxRate).Round(invoicedomain.AmountScale)

	status := invoicedomain.InvoiceStatusIssued
	if req.Draft {
		status = invoicedomain.InvoiceStatusDraft
	}

	invoice := &invoicedomain.Invoice{
		ID:              invoiceID,
		OrgID:           orgID,
		SubscriptionID:  req.SubscriptionID,
		Type:            req.Type,
		Status:          status,
		Currency:        req.Currency,
		BilledToName:    profile.LegalName,
		BilledToAddress: profile.Address,
		BilledToTaxID:   profile.TaxID,
		IssueDate:       issueDate,
		DueDate:         dueDate,
		SubTotal:        subTotal,
		TaxRate:         taxRate,
		TaxAmount:       taxAmount,
		TotalAmount:     subTotal.Add(taxAmount),
		PaidAmount:      decimal.Zero,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		invoice.IdempotencyKey = &key
	}

	retries := max(cfg.InvoiceNumberRetries, 0)
	for attempt := 0; ; attempt++ {
		number, err := s.nextInvoiceNumber(ctx, tx, orgID, cfg.InvoicePrefix, issueDate)
		if err != nil {
			return nil, false, err
		}
		invoice.InvoiceNumber = number

		err = s.insertInvoice(ctx, tx, invoice)
		if err == nil {
			logger.WithContext(ctx, s.log).Info("invoice generated",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.String("type", string(invoice.Type)),
			)
			return invoice, true, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, false, err
		}

		// A concurrent call with the same key may have won the race.
		if req.IdempotencyKey != "" {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, tx, orgID, req.IdempotencyKey)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing != nil {
				if !sameBillingEvent(existing, req) {
					return nil, false, invoicedomain.ErrIdempotencyConflict
				}
				return existing, false, nil
			}
		}

		if attempt >= retries {
			return nil, false, ierr.WithError(invoicedomain.ErrInvoiceNumberConflict).
				WithMessagef("invoice number %s still taken after %d retries", number, retries).
				Mark(ierr.ErrConflict)
		}
		s.metrics.RecordInvoiceNumberRetry(ctx)
		logger.WithContext(ctx, s.log).Warn("invoice number taken, retrying",
			zap.String("invoice_number", number),
			zap.Int("attempt", attempt+1),
		)
	}
}

func (s *Service) insertInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	if err := tx.SavePoint(insertSavepoint).Error; err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		if rbErr := tx.RollbackTo(insertSavepoint).Error; rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, prefix string, issuedAt time.Time) (string, error) {
	yearPrefix := format.YearPrefix(prefix, issuedAt)
	latest, err := s.repo.LatestNumber(ctx, tx, orgID, yearPrefix)
	if err != nil {
		return "", err
	}

	next := int64(1)
	if latest != "" {
		seq, err := format.ParseSequence(latest, yearPrefix)
		if err != nil {
			return "", err
		}
		next = seq + 1
	}
	return format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, prefix, issuedAt, next)
}

func (s *Service) FinalizeInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, changed, err := s.mutate(ctx, id, func(invoice *invoicedomain.Invoice, now time.Time) (map[string]any, error) {
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return nil, invoicedomain.ErrInvoiceNotDraft
		}
		return map[string]any{
			"status":     invoicedomain.InvoiceStatusIssued,
			"updated_at": now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordInvoiceTransition(ctx, "finalized")
		s.emitAudit(ctx, "invoice.finalized", invoice, map[string]any{
			"previous_status": string(invoicedomain.InvoiceStatusDraft),
		})
	}
	return invoice, nil
}

func (s *Service) VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*invoicedomain.Invoice, error) {
	reason = strings.TrimSpace(reason)
	var previous invoicedomain.InvoiceStatus
	invoice, changed, err := s.mutate(ctx, id, func(invoice *invoicedomain.Invoice, now time.Time) (map[string]any, error) {
		previous = invoice.Status
		return voidUpdates(invoice, reason, now)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordInvoiceTransition(ctx, "voided")
		s.emitAudit(ctx, "invoice.voided", invoice, map[string]any{
			"previous_status": string(previous),
			"reason":          reason,
		})
	}
	return invoice, nil
}

// VoidByKeyWithTx voids the invoice generated under an idempotency key inside
// the caller's transaction. It returns nil when no invoice carries the key.
// Void and uncollectible invoices are left as they are. The caller records
// metrics and audit entries after commit.
func (s *Service) VoidByKeyWithTx(ctx context.Context, tx *gorm.DB, key, reason string) (*invoicedomain.Invoice, bool, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, nil
	}

	found, err := s.repo.FindByIdempotencyKey(ctx, tx, orgID, key)
	if err != nil || found == nil {
		return nil, false, err
	}
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, found.ID)
	if err != nil {
		return nil, false, err
	}
	if invoice == nil {
		return nil, false, invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Status == invoicedomain.InvoiceStatusUncollectible {
		return invoice, false, nil
	}

	updates, err := voidUpdates(invoice, strings.TrimSpace(reason), s.clock.Now())
	if err != nil {
		return nil, false, err
	}
	if updates == nil {
		return invoice, false, nil
	}
	ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, invoice.ID, invoice.Version, updates)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, invoicedomain.ErrConcurrentUpdate
	}
	voided, err := s.repo.FindByID(ctx, tx, orgID, invoice.ID)
	if err != nil {
		return nil, false, err
	}
	return voided, true, nil
}

// voidUpdates returns the columns that void invoice. An invoice carrying
// payments must be deallocated first.
func voidUpdates(invoice *invoicedomain.Invoice, reason string, now time.Time) (map[string]any, error) {
	switch invoice.Status {
	case invoicedomain.InvoiceStatusVoid:
		return nil, nil
	case invoicedomain.InvoiceStatusPaid:
		return nil, invoicedomain.ErrInvoicePaid
	case invoicedomain.InvoiceStatusUncollectible:
		return nil, invoicedomain.ErrInvoiceClosed
	}
	if invoice.PaidAmount.IsPositive() {
		return nil, invoicedomain.ErrInvoiceHasPayments
	}
	return map[string]any{
		"status":      invoicedomain.InvoiceStatusVoid,
		"void_reason": nullableString(reason),
		"voided_at":   now,
		"updated_at":  now,
	}, nil
}

func (s *Service) WriteOff(ctx context.Context, id snowflake.ID, reason string) (*invoicedomain.Invoice, error) {
	reason = strings.TrimSpace(reason)
	var previous invoicedomain.InvoiceStatus
	invoice, changed, err := s.mutate(ctx, id, func(invoice *invoicedomain.Invoice, now time.Time) (map[string]any, error) {
		switch invoice.Status {
		case invoicedomain.InvoiceStatusUncollectible:
			return nil, nil
		case invoicedomain.InvoiceStatusPaid:
			return nil, invoicedomain.ErrInvoicePaid
		case invoicedomain.InvoiceStatusVoid:
			return nil, invoicedomain.ErrInvoiceClosed
		case invoicedomain.InvoiceStatusDraft:
			return nil, invoicedomain.ErrInvoiceNotIssued
		}
		previous = invoice.Status
		return map[string]any{
			"status":           invoicedomain.InvoiceStatusUncollectible,
			"write_off_reason": nullableString(reason),
			"written_off_at":   now,
			"updated_at":       now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordInvoiceTransition(ctx, "written_off")
		s.emitAudit(ctx, "invoice.written_off", invoice, map[string]any{
			"previous_status": string(previous),
			"reason":          reason,
			"balance_due":     invoice.BalanceDue().String(),
		})
	}
	return invoice, nil
}

// mutate locks the invoice and applies the updates returned by apply. A nil
// update map leaves the invoice untouched.
func (s *Service) mutate(
	ctx context.Context,
	id snowflake.ID,
	apply func(invoice *invoicedomain.Invoice, now time.Time) (map[string]any, error),
) (*invoicedomain.Invoice, bool, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if id == 0 {
		return nil, false, invoicedomain.ErrInvalidInvoiceID
	}

	var result *invoicedomain.Invoice
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		updates, err := apply(invoice, s.clock.Now())
		if err != nil {
			return err
		}
		if updates != nil {
			ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, id, invoice.Version, updates)
			if err != nil {
				return err
			}
			if !ok {
				return invoicedomain.ErrConcurrentUpdate
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

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	var cursor *invoicedomain.InvoiceCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		cursor = &invoicedomain.InvoiceCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		OrgID:          orgID,
		Status:         req.Status,
		Type:           req.Type,
		SubscriptionID: req.SubscriptionID,
		Cursor:         cursor,
		Limit:          limit,
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, limit, func(item *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

// OutstandingBalance sums BalanceDue per currency over issued, partially
// paid and overdue invoices.
func (s *Service) OutstandingBalance(ctx context.Context) ([]invoicedomain.CurrencyBalance, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := s.repo.ListOutstanding(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	byCurrency := lo.GroupBy(invoices, func(inv invoicedomain.Invoice) string { return inv.Currency })
	currencies := lo.Keys(byCurrency)
	sort.Strings(currencies)

	balances := make([]invoicedomain.CurrencyBalance, 0, len(currencies))
	for _, currency := range currencies {
		group := byCurrency[currency]
		balances = append(balances, invoicedomain.CurrencyBalance{
			Currency: currency,
			BalanceDue: lo.Reduce(group, func(acc decimal.Decimal, inv invoicedomain.Invoice, _ int) decimal.Decimal {
				return acc.Add(inv.BalanceDue())
			}, decimal.Zero),
			Invoices: len(group),
		})
	}
	return balances, nil
}

// ProcessOverdueInvoices marks issued and partially paid invoices past their
// due date as overdue. Each row is updated with a version guard so repeated
// runs are harmless.
func (s *Service) ProcessOverdueInvoices(ctx context.Context, now time.Time) (int, error) {
	statuses := []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusPartiallyPaid,
	}
	orgIDs, err := s.repo.ListOrgIDsDueBefore(ctx, s.db, statuses, now)
	if err != nil {
		return 0, err
	}

	var errs []error
	count := 0
	for _, orgID := range orgIDs {
		orgCtx := orgcontext.WithOrgID(ctx, int64(orgID))
		candidates, err := s.repo.ListDueBefore(orgCtx, s.db, orgID, statuses, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i := range candidates {
			invoice := candidates[i]
			ok, err := s.repo.UpdateGuarded(orgCtx, s.db, orgID, invoice.ID, invoice.Version, map[string]any{
				"status":     invoicedomain.InvoiceStatusOverdue,
				"updated_at": now,
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				continue
			}
			count++
			s.metrics.RecordInvoiceTransition(orgCtx, "overdue")
			s.emitAudit(orgCtx, "invoice.overdue", &invoice, map[string]any{
				"previous_status": string(invoice.Status),
			})
		}
	}
	return count, errors.Join(errs...)
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"type":           string(invoice.Type),
		"currency":       invoice.Currency,
		"total_amount":   invoice.TotalAmount.String(),
		"paid_amount":    invoice.PaidAmount.String(),
	}
	if invoice.SubscriptionID != nil {
		metadata["subscription_id"] = invoice.SubscriptionID.String()
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	orgID := invoice.OrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetInvoice, &targetID, metadata)
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func sameBillingEvent(existing *invoicedomain.Invoice, req invoicedomain.GenerateInvoiceRequest) bool {
	if existing.Type != req.Type || existing.Currency != req.Currency {
		return false
	}
	switch {
	case existing.SubscriptionID == nil && req.SubscriptionID == nil:
		return true
	case existing.SubscriptionID == nil || req.SubscriptionID == nil:
		return false
	default:
		return *existing.SubscriptionID == *req.SubscriptionID
	}
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
