package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/audit/repository"
	"github.com/smallbiznis/clinicbilling/internal/audit/service"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{
		DB:    testutil.NewDB(t, &auditdomain.AuditLog{}),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestAuditLogResolvesActorAndMasksMetadata(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.TenantContext(snowflake.ID(7), "USD")

	targetID := "42"
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "payment.created", "payment", &targetID, map[string]any{
		"reference": "CARD-12345678",
	}))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	require.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	require.Equal(t, "test-user", *entry.ActorID)
	require.NotNil(t, entry.OrgID)
	require.Equal(t, snowflake.ID(7), *entry.OrgID)
	require.Equal(t, "****5678", entry.Metadata["reference"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newService(t)
	orgID := snowflake.ID(7)

	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "", nil, "subscription.renewed", "subscription", nil, nil))

	resp, err := svc.List(orgcontext.WithOrgID(context.Background(), 7), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	require.Equal(t, "system", resp.AuditLogs[0].ActorType)
	require.Nil(t, resp.AuditLogs[0].ActorID)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newService(t)
	err := svc.AuditLog(context.Background(), nil, "", nil, " ", "payment", nil, nil)
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, clk := newService(t)
	ctx := testutil.TenantContext(snowflake.ID(7), "USD")

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "invoice.issued", "invoice", nil, nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	require.False(t, second.HasMore)
}

func TestListRequiresOrganization(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestListFiltersByActionFamily(t *testing.T) {
	svc, clk := newService(t)
	ctx := testutil.TenantContext(snowflake.ID(7), "USD")

	for _, action := range []string{"invoice.issued", "payment.allocated", "invoice.voided", "invoice_sync.started"} {
		require.NoError(t, svc.AuditLog(ctx, nil, "", nil, action, "invoice", nil, nil))
		clk.Advance(time.Minute)
	}

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{ActionPrefix: "invoice."})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	require.Equal(t, "invoice.voided", resp.AuditLogs[0].Action)
	require.Equal(t, "invoice.issued", resp.AuditLogs[1].Action)

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{ActionPrefix: "invoice_"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	require.Equal(t, "invoice_sync.started", resp.AuditLogs[0].Action)
}

func TestHistoryReturnsRecordTrailOldestFirst(t *testing.T) {
	svc, clk := newService(t)
	ctx := testutil.TenantContext(snowflake.ID(7), "USD")
	other := testutil.TenantContext(snowflake.ID(8), "USD")

	invoiceID := "21"
	otherInvoice := "22"
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "invoice.issued", auditdomain.TargetInvoice, &invoiceID, nil))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "invoice.issued", auditdomain.TargetInvoice, &otherInvoice, nil))
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "payment.created", auditdomain.TargetPayment, &invoiceID, nil))
	require.NoError(t, svc.AuditLog(other, nil, "", nil, "invoice.voided", auditdomain.TargetInvoice, &invoiceID, nil))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "invoice.voided", auditdomain.TargetInvoice, &invoiceID, map[string]any{
		"void_reason": "duplicate",
	}))

	history, err := svc.History(ctx, "Invoice", snowflake.ID(21))
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "invoice.issued", history[0].Action)
	require.Equal(t, "invoice.voided", history[1].Action)
	require.Equal(t, "duplicate", history[1].Metadata["void_reason"])

	_, err = svc.History(ctx, "patient", snowflake.ID(21))
	require.ErrorIs(t, err, auditdomain.ErrInvalidTarget)
	_, err = svc.History(ctx, auditdomain.TargetInvoice, 0)
	require.ErrorIs(t, err, auditdomain.ErrInvalidTarget)
	_, err = svc.History(context.Background(), auditdomain.TargetInvoice, snowflake.ID(21))
	require.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}
