package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	auditrepo "github.com/smallbiznis/clinicbilling/internal/audit/repository"
	auditservice "github.com/smallbiznis/clinicbilling/internal/audit/service"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	currencydomain "github.com/smallbiznis/clinicbilling/internal/currency/domain"
	currencyrepo "github.com/smallbiznis/clinicbilling/internal/currency/repository"
	currencyservice "github.com/smallbiznis/clinicbilling/internal/currency/service"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/clinicbilling/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/clinicbilling/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/clinicbilling/internal/payment/repository"
	paymentservice "github.com/smallbiznis/clinicbilling/internal/payment/service"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/clinicbilling/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/clinicbilling/internal/tenant/service"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgID = snowflake.ID(1001)

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	ctx        context.Context
	resolver   currencydomain.Resolver
	invoiceSvc invoicedomain.Service
	svc        paymentdomain.Service
	params     paymentservice.Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t,
		&paymentdomain.Payment{},
		&paymentdomain.ChequeDetail{},
		&paymentdomain.PaymentAllocation{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&tenantdomain.BillingProfile{},
		&currencydomain.ExchangeRate{},
		&auditdomain.AuditLog{},
	)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	node := testutil.NewNode(t)
	billing := config.NewStaticBillingConfig(config.DefaultBillingConfig())

	require.NoError(t, db.Create(&tenantdomain.BillingProfile{
		OrgID:              testOrgID,
		LegalName:          "Sunrise Dental",
		FunctionalCurrency: "USD",
		MarkupType:         currencydomain.MarkupTypePercentage,
		MarkupValue:        decimal.NewFromInt(2),
		CreatedAt:          fakeClock.Now(),
		UpdatedAt:          fakeClock.Now(),
	}).Error)

	tenantSvc := tenantservice.NewService(tenantservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Repo:  tenantrepo.Provide(),
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  auditrepo.Provide(),
	})
	resolver := currencyservice.NewResolver(currencyservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Repo:    currencyrepo.Provide(),
		Billing: billing,
	})
	invoiceRepo := invoicerepo.Provide()
	params := paymentservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoiceRepo,
		TenantSvc:   tenantSvc,
		Resolver:    resolver,
		AuditSvc:    auditSvc,
	}

	return &fixture{
		db:       db,
		clock:    fakeClock,
		ctx:      testutil.TenantContext(testOrgID, "USD"),
		resolver: resolver,
		invoiceSvc: invoiceservice.NewService(invoiceservice.ServiceParam{
			DB:        db,
			Log:       zap.NewNop(),
			GenID:     node,
			Clock:     fakeClock,
			Billing:   billing,
			Repo:      invoiceRepo,
			TenantSvc: tenantSvc,
		}),
		svc:    paymentservice.NewService(params),
		params: params,
	}
}

// invoice issues an 82.5 USD invoice: 75 subtotal at 10% tax.
func (f *fixture) invoice(t *testing.T) *invoicedomain.Invoice {
	t.Helper()
	taxRate := decimal.RequireFromString("0.1")
	invoice, err := f.invoiceSvc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		Type:     invoicedomain.InvoiceTypeManual,
		Currency: "USD",
		TaxRate:  &taxRate,
		Items: []invoicedomain.ItemInput{
			{Description: "Standard Monthly", Quantity: 1, UnitPrice: decimal.NewFromInt(35)},
			{Description: "Additional branch", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
			{Description: "Additional user", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	requireDecimal(t, "82.5", invoice.TotalAmount)
	return invoice
}

func (f *fixture) cash(t *testing.T, amount string, allocations ...paymentdomain.AllocationInput) *paymentdomain.Payment {
	t.Helper()
	payment, err := f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Method:      "cash",
		Allocations: allocations,
	})
	require.NoError(t, err)
	return payment
}

func (f *fixture) reloadInvoice(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.invoiceSvc.GetByID(f.ctx, id)
	require.NoError(t, err)
	return invoice
}

// requirePaidMatchesAllocations checks that the invoice's paid amount equals
// the sum of its allocations.
func (f *fixture) requirePaidMatchesAllocations(t *testing.T, invoiceID snowflake.ID) {
	t.Helper()
	allocations, err := f.svc.ListAllocationsByInvoice(f.ctx, invoiceID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, allocation := range allocations {
		total = total.Add(allocation.InvoiceAmount)
	}
	requireDecimal(t, total.String(), f.reloadInvoice(t, invoiceID).PaidAmount)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func decimalPtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestCreatePaymentWithAllocationPaysInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)

	payment := f.cash(t, "100", paymentdomain.AllocationInput{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("82.5"),
	})

	require.Equal(t, paymentdomain.PaymentStatusCompleted, payment.Status)
	requireDecimal(t, "17.5", payment.UnallocatedAmount())
	requireDecimal(t, "1", payment.FinalExchangeRate)
	requireDecimal(t, "100", payment.AmountInFunctionalCurrency)
	require.Len(t, payment.Allocations, 1)

	paid := f.reloadInvoice(t, invoice.ID)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	requireDecimal(t, "82.5", paid.PaidAmount)
	require.True(t, paid.BalanceDue().IsZero())
	require.NotNil(t, paid.PaidAt)

	_, err := f.invoiceSvc.VoidInvoice(f.ctx, invoice.ID, "duplicate")
	require.ErrorIs(t, err, invoicedomain.ErrInvoicePaid)
	require.True(t, ierr.IsInvariantViolation(err))
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "100")

	allocated, err := f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(50))
	require.NoError(t, err)
	requireDecimal(t, "50", allocated.UnallocatedAmount())
	partial := f.reloadInvoice(t, invoice.ID)
	require.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, partial.Status)
	requireDecimal(t, "32.5", partial.BalanceDue())
	f.requirePaidMatchesAllocations(t, invoice.ID)

	released, err := f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, decimalPtr("50"))
	require.NoError(t, err)
	requireDecimal(t, "100", released.UnallocatedAmount())
	require.Empty(t, released.Allocations)

	restored := f.reloadInvoice(t, invoice.ID)
	require.Equal(t, invoicedomain.InvoiceStatusIssued, restored.Status)
	require.True(t, restored.PaidAmount.IsZero())
	f.requirePaidMatchesAllocations(t, invoice.ID)
}

func TestRepeatedAllocationGrowsOneRow(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "100")

	_, err := f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(30))
	require.NoError(t, err)
	grown, err := f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(20))
	require.NoError(t, err)
	require.Len(t, grown.Allocations, 1)
	requireDecimal(t, "50", grown.Allocations[0].Amount)

	partial, err := f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, decimalPtr("15"))
	require.NoError(t, err)
	requireDecimal(t, "35", partial.Allocations[0].Amount)
	requireDecimal(t, "65", partial.UnallocatedAmount())
	f.requirePaidMatchesAllocations(t, invoice.ID)

	_, err = f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, decimalPtr("40"))
	require.ErrorIs(t, err, paymentdomain.ErrExceedsAllocation)

	whole, err := f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.NoError(t, err)
	require.Empty(t, whole.Allocations)

	_, err = f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.ErrorIs(t, err, paymentdomain.ErrAllocationNotFound)
	require.True(t, ierr.IsNotFound(err))
}

func TestAllocationRejectsOvercommit(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)

	large := f.cash(t, "100")
	_, err := f.svc.AllocateToInvoice(f.ctx, large.ID, invoice.ID, decimal.NewFromInt(90))
	require.ErrorIs(t, err, paymentdomain.ErrExceedsInvoiceBalance)
	require.True(t, ierr.IsInvariantViolation(err))

	small := f.cash(t, "50")
	_, err = f.svc.AllocateToInvoice(f.ctx, small.ID, invoice.ID, decimal.NewFromInt(60))
	require.ErrorIs(t, err, paymentdomain.ErrInsufficientFunds)
	require.True(t, ierr.IsInvariantViolation(err))

	untouched := f.reloadInvoice(t, invoice.ID)
	require.True(t, untouched.PaidAmount.IsZero())
	require.Equal(t, invoicedomain.InvoiceStatusIssued, untouched.Status)

	// A rejected initial allocation leaves no payment behind.
	_, err = f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
		Method:   "card",
		Allocations: []paymentdomain.AllocationInput{
			{InvoiceID: invoice.ID, Amount: decimal.NewFromInt(95)},
		},
	})
	require.ErrorIs(t, err, paymentdomain.ErrExceedsInvoiceBalance)
	page, err := f.svc.List(f.ctx, paymentdomain.ListPaymentRequest{})
	require.NoError(t, err)
	require.Len(t, page.Payments, 2)
}

func TestAllocationRejectsClosedInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	_, err := f.invoiceSvc.VoidInvoice(f.ctx, invoice.ID, "issued in error")
	require.NoError(t, err)

	payment := f.cash(t, "100")
	_, err = f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(10))
	require.ErrorIs(t, err, paymentdomain.ErrInvoiceNotPayable)
}

func TestRefundPayment(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "100", paymentdomain.AllocationInput{InvoiceID: invoice.ID, Amount: decimal.NewFromInt(60)})

	refunded, err := f.svc.RefundPayment(f.ctx, payment.ID, "overpaid", nil)
	require.NoError(t, err)
	requireDecimal(t, "40", refunded.RefundedAmount)
	require.True(t, refunded.UnallocatedAmount().IsZero())
	require.Equal(t, paymentdomain.PaymentStatusCompleted, refunded.Status)

	_, err = f.svc.RefundPayment(f.ctx, payment.ID, "again", decimalPtr("10"))
	require.ErrorIs(t, err, paymentdomain.ErrRefundExceedsUnallocated)
	require.True(t, ierr.IsInvariantViolation(err))

	_, err = f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.NoError(t, err)
	full, err := f.svc.RefundPayment(f.ctx, payment.ID, "clinic closed", nil)
	require.NoError(t, err)
	requireDecimal(t, "100", full.RefundedAmount)
	require.Equal(t, paymentdomain.PaymentStatusRefunded, full.Status)

	_, err = f.svc.RefundPayment(f.ctx, payment.ID, "", nil)
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotRefundable)

	_, err = f.svc.RefundPayment(f.ctx, payment.ID, "", decimalPtr("-1"))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "50", paymentdomain.AllocationInput{InvoiceID: invoice.ID, Amount: decimal.NewFromInt(50)})

	_, err := f.svc.CancelPayment(f.ctx, payment.ID, "entered twice")
	require.ErrorIs(t, err, paymentdomain.ErrPaymentHasAllocations)

	_, err = f.svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.NoError(t, err)

	voided, err := f.svc.CancelPayment(f.ctx, payment.ID, "entered twice")
	require.NoError(t, err)
	require.Equal(t, paymentdomain.PaymentStatusVoided, voided.Status)
	require.NotNil(t, voided.VoidedAt)

	again, err := f.svc.CancelPayment(f.ctx, payment.ID, "entered twice")
	require.NoError(t, err)
	require.Equal(t, voided.Version, again.Version)

	_, err = f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(10))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotAllocatable)
}

func TestChequeLifecycle(t *testing.T) {
	f := newFixture(t)
	issued := f.clock.Now()

	_, err := f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount: decimal.NewFromInt(80), Currency: "USD", Method: "cheque",
	})
	require.ErrorIs(t, err, paymentdomain.ErrChequeDetailRequired)

	_, err = f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount: decimal.NewFromInt(80), Currency: "USD", Method: "cash",
		Cheque: &paymentdomain.ChequeInput{BankName: "First Bank", ChequeNumber: "000123", IssueDate: issued},
	})
	require.ErrorIs(t, err, paymentdomain.ErrChequeMethodMismatch)

	newCheque := func(number string) *paymentdomain.Payment {
		payment, err := f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
			Amount: decimal.NewFromInt(80), Currency: "USD", Method: "cheque",
			Cheque: &paymentdomain.ChequeInput{BankName: "First Bank", ChequeNumber: number, IssueDate: issued},
		})
		require.NoError(t, err)
		require.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
		require.Equal(t, paymentdomain.ChequeStatusPending, payment.ChequeDetail.Status)
		return payment
	}

	cleared := newCheque("000123")
	_, err = f.svc.RefundPayment(f.ctx, cleared.ID, "", nil)
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotRefundable)

	result, err := f.svc.UpdateChequeStatus(f.ctx, cleared.ID, paymentdomain.ChequeStatusCleared)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.PaymentStatusCompleted, result.Status)
	require.Equal(t, paymentdomain.ChequeStatusCleared, result.ChequeDetail.Status)

	_, err = f.svc.UpdateChequeStatus(f.ctx, cleared.ID, paymentdomain.ChequeStatusCleared)
	require.NoError(t, err)
	_, err = f.svc.UpdateChequeStatus(f.ctx, cleared.ID, paymentdomain.ChequeStatusBounced)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidChequeTransition)
	_, err = f.svc.UpdateChequeStatus(f.ctx, cleared.ID, paymentdomain.ChequeStatusPending)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidChequeTransition)

	bounced := newCheque("000124")
	result, err = f.svc.UpdateChequeStatus(f.ctx, bounced.ID, paymentdomain.ChequeStatusBounced)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.PaymentStatusFailed, result.Status)

	cash := f.cash(t, "10")
	_, err = f.svc.UpdateChequeStatus(f.ctx, cash.ID, paymentdomain.ChequeStatusCleared)
	require.ErrorIs(t, err, paymentdomain.ErrChequeNotFound)
}

func TestCrossCurrencyPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.UpsertRate(context.Background(), currencydomain.UpsertRateRequest{
		BaseCurrency:   "EUR",
		TargetCurrency: "USD",
		Rate:           decimal.RequireFromString("1.1"),
	})
	require.NoError(t, err)
	invoice := f.invoice(t)

	payment, err := f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount:   decimal.NewFromInt(100),
		Currency: "eur",
		Method:   "bank_transfer",
	})
	require.NoError(t, err)
	require.Equal(t, "EUR", payment.Currency)
	requireDecimal(t, "1.1", payment.BaseExchangeRate)
	requireDecimal(t, "1.122", payment.FinalExchangeRate)
	requireDecimal(t, "112.2", payment.AmountInFunctionalCurrency)

	allocated, err := f.svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(50))
	require.NoError(t, err)
	requireDecimal(t, "50", allocated.UnallocatedAmount())
	requireDecimal(t, "55", allocated.Allocations[0].InvoiceAmount)
	requireDecimal(t, "1.1", allocated.Allocations[0].ExchangeRate)

	partial := f.reloadInvoice(t, invoice.ID)
	requireDecimal(t, "55", partial.PaidAmount)
	require.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, partial.Status)
	f.requirePaidMatchesAllocations(t, invoice.ID)

	// The frozen functional amount survives a later rate change.
	_, err = f.resolver.UpsertRate(context.Background(), currencydomain.UpsertRateRequest{
		BaseCurrency:   "EUR",
		TargetCurrency: "USD",
		Rate:           decimal.RequireFromString("1.3"),
	})
	require.NoError(t, err)
	reloaded, err := f.svc.GetByID(f.ctx, payment.ID)
	require.NoError(t, err)
	requireDecimal(t, "112.2", reloaded.AmountInFunctionalCurrency)

	_, err = f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{
		Amount:   decimal.NewFromInt(100),
		Currency: "GBP",
		Method:   "card",
	})
	require.ErrorIs(t, err, currencydomain.ErrRateNotFound)
	require.True(t, ierr.IsRateNotFound(err))
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{Amount: decimal.Zero, Currency: "USD", Method: "cash"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{Amount: decimal.NewFromInt(5), Currency: "USD", Method: "barter"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = f.svc.CreatePayment(f.ctx, paymentdomain.CreatePaymentRequest{Amount: decimal.NewFromInt(5), Currency: "US", Method: "cash"})
	require.True(t, ierr.IsValidation(err))

	_, err = f.svc.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{Amount: decimal.NewFromInt(5), Currency: "USD", Method: "cash"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidOrganization)

	_, err = f.svc.GetByID(f.ctx, snowflake.ID(42))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

// staleInvoiceRepo bumps the invoice version right before each guarded
// update, as a concurrent writer committing first would.
type staleInvoiceRepo struct {
	invoicedomain.Repository
}

func (r staleInvoiceRepo) UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error) {
	if err := db.WithContext(ctx).Table("invoices").Where("org_id = ? AND id = ?", orgID, id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
		return false, err
	}
	return r.Repository.UpdateGuarded(ctx, db, orgID, id, version, updates)
}

// stalePaymentRepo does the same for payments.
type stalePaymentRepo struct {
	paymentdomain.Repository
}

func (r stalePaymentRepo) UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error) {
	if err := db.WithContext(ctx).Table("payments").Where("org_id = ? AND id = ?", orgID, id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
		return false, err
	}
	return r.Repository.UpdateGuarded(ctx, db, orgID, id, version, updates)
}

func TestAllocationRejectsStaleInvoiceVersion(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "100")

	params := f.params
	params.InvoiceRepo = staleInvoiceRepo{Repository: invoicerepo.Provide()}
	svc := paymentservice.NewService(params)

	_, err := svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(50))
	require.ErrorIs(t, err, paymentdomain.ErrConcurrentUpdate)
	require.True(t, ierr.IsConflict(err))

	_, err = svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.ErrorIs(t, err, paymentdomain.ErrAllocationNotFound)

	unchanged := f.reloadInvoice(t, invoice.ID)
	require.Equal(t, invoicedomain.InvoiceStatusIssued, unchanged.Status)
	require.True(t, unchanged.PaidAmount.IsZero())
	require.Equal(t, invoice.Version, unchanged.Version)

	reloaded, err := f.svc.GetByID(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Allocations)
	requireDecimal(t, "100", reloaded.UnallocatedAmount())
	f.requirePaidMatchesAllocations(t, invoice.ID)
}

func TestAllocationRejectsStalePaymentVersion(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoice(t)
	payment := f.cash(t, "100", paymentdomain.AllocationInput{
		InvoiceID: invoice.ID,
		Amount:    decimal.NewFromInt(20),
	})

	params := f.params
	params.Repo = stalePaymentRepo{Repository: paymentrepo.Provide()}
	svc := paymentservice.NewService(params)

	_, err := svc.AllocateToInvoice(f.ctx, payment.ID, invoice.ID, decimal.NewFromInt(30))
	require.ErrorIs(t, err, paymentdomain.ErrConcurrentUpdate)
	require.True(t, ierr.IsConflict(err))

	_, err = svc.DeallocateFromInvoice(f.ctx, payment.ID, invoice.ID, nil)
	require.ErrorIs(t, err, paymentdomain.ErrConcurrentUpdate)

	// Both attempts rolled back the invoice and allocation writes.
	unchanged := f.reloadInvoice(t, invoice.ID)
	require.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, unchanged.Status)
	requireDecimal(t, "20", unchanged.PaidAmount)

	reloaded, err := f.svc.GetByID(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Allocations, 1)
	requireDecimal(t, "20", reloaded.Allocations[0].Amount)
	require.Equal(t, payment.Version, reloaded.Version)
	f.requirePaidMatchesAllocations(t, invoice.ID)
}
