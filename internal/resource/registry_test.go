package resource

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/clinicbilling/internal/invoice/repository"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/clinicbilling/internal/payment/repository"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/clinicbilling/internal/subscription/repository"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	orgA = snowflake.ID(1001)
	orgB = snowflake.ID(2002)
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	db := testutil.NewDB(t,
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&paymentdomain.ChequeDetail{},
		&paymentdomain.PaymentAllocation{},
	)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID: 11, OrgID: orgA, PlanID: "STD_M", BillingCycle: "MONTHLY",
		Status: subscriptiondomain.SubscriptionStatusActive, StartDate: now, EndDate: now.AddDate(0, 1, 0),
		IncludedBranchesSnapshot: 1, IncludedUsersSnapshot: 3, Fee: decimal.NewFromInt(35), Currency: "USD",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&invoicedomain.Invoice{
		ID: 21, OrgID: orgB, InvoiceNumber: "INV-2026-000001", Type: invoicedomain.InvoiceTypeManual,
		Status: invoicedomain.InvoiceStatusIssued, Currency: "USD", BilledToName: "Harbor Clinic",
		IssueDate: now, DueDate: now.AddDate(0, 0, 14), SubTotal: decimal.NewFromInt(10),
		TaxRate: decimal.Zero, TaxAmount: decimal.Zero, TotalAmount: decimal.NewFromInt(10), PaidAmount: decimal.Zero,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&paymentdomain.Payment{
		ID: 31, OrgID: orgA, Method: paymentdomain.PaymentMethodCash, Amount: decimal.NewFromInt(10),
		Currency: "USD", FunctionalCurrency: "USD", BaseExchangeRate: decimal.NewFromInt(1),
		FinalExchangeRate: decimal.NewFromInt(1), AmountInFunctionalCurrency: decimal.NewFromInt(10),
		RefundedAmount: decimal.Zero, Status: paymentdomain.PaymentStatusCompleted, PaidAt: now,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)

	return NewRegistry(Params{
		DB:            db,
		Log:           zap.NewNop(),
		Subscriptions: subscriptionrepo.Provide(),
		Invoices:      invoicerepo.Provide(),
		Payments:      paymentrepo.Provide(),
	})
}

func TestLookupDispatchesByKind(t *testing.T) {
	registry := newRegistry(t)
	ctx := orgcontext.WithTenant(context.Background(), orgcontext.Tenant{OrgID: orgA})

	found, err := registry.Lookup(ctx, Ref{Kind: KindSubscription, ID: 11})
	require.NoError(t, err)
	sub, ok := found.(SubscriptionResource)
	require.True(t, ok)
	require.Equal(t, "STD_M", sub.Subscription.PlanID)
	require.Equal(t, orgA, found.OrgID())

	found, err = registry.Lookup(ctx, Ref{Kind: KindPayment, ID: 31})
	require.NoError(t, err)
	require.Equal(t, KindPayment, found.Kind())
	require.Equal(t, snowflake.ID(31), found.ResourceID())

	_, err = registry.Lookup(ctx, Ref{Kind: KindInvoice, ID: 999})
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestLookupRejectsUnknownKind(t *testing.T) {
	registry := newRegistry(t)
	ctx := orgcontext.WithTenant(context.Background(), orgcontext.Tenant{OrgID: orgA})

	_, err := registry.Lookup(ctx, Ref{Kind: Kind("patient"), ID: 11})
	require.ErrorIs(t, err, ErrUnknownKind)
	require.True(t, ierr.IsValidation(err))

	_, err = ParseKind("patients")
	require.ErrorIs(t, err, ErrUnknownKind)

	kind, err := ParseKind(" Invoices ")
	require.NoError(t, err)
	require.Equal(t, KindInvoice, kind)
}

func TestLookupHidesOtherTenants(t *testing.T) {
	registry := newRegistry(t)

	member := orgcontext.WithTenant(context.Background(), orgcontext.Tenant{OrgID: orgA})
	_, err := registry.Lookup(member, Ref{Kind: KindInvoice, OrgID: orgB, ID: 21})
	require.ErrorIs(t, err, ErrResourceNotFound)
	require.True(t, ierr.IsNotFound(err))

	// Without an explicit org the lookup stays in the caller's tenant.
	_, err = registry.Lookup(member, Ref{Kind: KindInvoice, ID: 21})
	require.True(t, ierr.IsNotFound(err))

	admin := orgcontext.WithTenant(context.Background(), orgcontext.Tenant{OrgID: orgA, SuperAdmin: true})
	found, err := registry.Lookup(admin, Ref{Kind: KindInvoice, OrgID: orgB, ID: 21})
	require.NoError(t, err)
	invoice := found.(InvoiceResource)
	require.Equal(t, "INV-2026-000001", invoice.Invoice.InvoiceNumber)

	_, err = registry.Lookup(context.Background(), Ref{Kind: KindInvoice, ID: 21})
	require.ErrorIs(t, err, ErrInvalidOrganization)
}
