package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/clinicbilling/internal/invoice/repository"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/clinicbilling/internal/payment/repository"
	"github.com/smallbiznis/clinicbilling/internal/resource"
	"github.com/smallbiznis/clinicbilling/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/clinicbilling/internal/subscription/repository"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingJobs struct{}

func (countingJobs) ProcessAutoRenewals(context.Context, time.Time) (int, error)           { return 2, nil }
func (countingJobs) ProcessScheduledCancellations(context.Context, time.Time) (int, error) { return 0, nil }
func (countingJobs) ProcessExpirations(context.Context, time.Time) (int, error)            { return 0, nil }
func (countingJobs) ActivateFutureSubscriptions(context.Context, time.Time) (int, error)   { return 0, nil }
func (countingJobs) ProcessOverdueInvoices(context.Context, time.Time) (int, error)        { return 3, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t,
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&paymentdomain.ChequeDetail{},
		&paymentdomain.PaymentAllocation{},
	)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&invoicedomain.Invoice{
		ID: 21, OrgID: 2002, InvoiceNumber: "INV-2026-000001", Type: invoicedomain.InvoiceTypeManual,
		Status: invoicedomain.InvoiceStatusIssued, Currency: "USD", BilledToName: "Harbor Clinic",
		IssueDate: now, DueDate: now.AddDate(0, 0, 14), SubTotal: decimal.NewFromInt(10),
		TaxRate: decimal.Zero, TaxAmount: decimal.Zero, TotalAmount: decimal.NewFromInt(10), PaidAmount: decimal.Zero,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID: 11, OrgID: 2002, PlanID: "growth", BillingCycle: "MONTHLY",
		Status: subscriptiondomain.SubscriptionStatusActive, StartDate: now, EndDate: now.AddDate(0, 1, 0),
		IncludedBranchesSnapshot: 3, PurchasedBranches: 2, IncludedUsersSnapshot: 10, BonusUsers: 4,
		Fee: decimal.NewFromInt(10), Currency: "USD", Version: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&paymentdomain.Payment{
		ID: 31, OrgID: 2002, Method: paymentdomain.PaymentMethodCash, Amount: decimal.NewFromInt(25),
		Currency: "USD", FunctionalCurrency: "USD", BaseExchangeRate: decimal.NewFromInt(1),
		FinalExchangeRate: decimal.NewFromInt(1), AmountInFunctionalCurrency: decimal.NewFromInt(25),
		RefundedAmount: decimal.Zero, Status: paymentdomain.PaymentStatusCompleted, PaidAt: now,
		Version: 1, CreatedAt: now, UpdatedAt: now,
		Allocations: []paymentdomain.PaymentAllocation{{
			ID: 41, OrgID: 2002, InvoiceID: 21, Amount: decimal.NewFromInt(4),
			InvoiceAmount: decimal.NewFromInt(4), ExchangeRate: decimal.NewFromInt(1), CreatedAt: now, UpdatedAt: now,
		}},
	}).Error)

	sched, err := scheduler.New(scheduler.Params{
		Log:           zap.NewNop(),
		GenID:         testutil.NewNode(t),
		Clock:         clock.NewFakeClock(now),
		Subscriptions: countingJobs{},
		Invoices:      countingJobs{},
	})
	require.NoError(t, err)

	return NewServer(ServerParams{
		Gin: NewEngine(zap.NewNop(), observability.Config{Environment: "test"}),
		DB:  db,
		Log: zap.NewNop(),
		Resources: resource.NewRegistry(resource.Params{
			DB:            db,
			Log:           zap.NewNop(),
			Subscriptions: subscriptionrepo.Provide(),
			Invoices:      invoicerepo.Provide(),
			Payments:      paymentrepo.Provide(),
		}),
		Scheduler: sched,
	})
}

func do(t *testing.T, srv *Server, method, path, orgID string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if orgID != "" {
		req.Header.Set(HeaderOrg, orgID)
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec, body := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])

	rec, _ = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunJobEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec, body := do(t, srv, http.MethodPost, "/internal/jobs/overdue_invoices", "2002")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "overdue_invoices", body["job"])
	require.Equal(t, float64(3), body["processed"])

	rec, body = do(t, srv, http.MethodPost, "/internal/jobs/rebuild_ledger", "2002")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", body["error"].(map[string]any)["type"])

	rec, _ = do(t, srv, http.MethodPost, "/internal/jobs/auto_renewals", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResourceEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec, body := do(t, srv, http.MethodGet, "/internal/resources/invoices/21", "2002")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "invoice", body["kind"])
	invoice := body["data"].(map[string]any)["invoice"].(map[string]any)
	require.Equal(t, "INV-2026-000001", invoice["invoice_number"])
	require.Equal(t, "10", invoice["balance_due"])

	rec, body = do(t, srv, http.MethodGet, "/internal/resources/subscriptions/11", "2002")
	require.Equal(t, http.StatusOK, rec.Code)
	sub := body["data"].(map[string]any)["subscription"].(map[string]any)
	require.Equal(t, float64(5), sub["max_branches"])
	require.Equal(t, float64(14), sub["max_users"])

	rec, body = do(t, srv, http.MethodGet, "/internal/resources/payments/31", "2002")
	require.Equal(t, http.StatusOK, rec.Code)
	payment := body["data"].(map[string]any)["payment"].(map[string]any)
	require.Equal(t, "4", payment["allocated_amount"])
	require.Equal(t, "21", payment["unallocated_amount"])

	rec, body = do(t, srv, http.MethodGet, "/internal/resources/invoices/21", "1001")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", body["error"].(map[string]any)["type"])

	rec, _ = do(t, srv, http.MethodGet, "/internal/resources/invoices/21?org_id=2002", "1001")
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/internal/resources/invoices/21?org_id=2002", nil)
	req.Header.Set(HeaderOrg, "1001")
	req.Header.Set(HeaderSuperAdmin, "true")
	admin := httptest.NewRecorder()
	srv.Engine().ServeHTTP(admin, req)
	require.Equal(t, http.StatusOK, admin.Code)

	rec, _ = do(t, srv, http.MethodGet, "/internal/resources/patients/21", "2002")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/internal/resources/invoices/abc", "2002")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
