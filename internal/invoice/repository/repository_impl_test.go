package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/invoice/repository"
	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const orgID = snowflake.ID(1001)

func seedNumbers(t *testing.T, db *gorm.DB, numbers ...string) {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, number := range numbers {
		require.NoError(t, db.Create(&domain.Invoice{
			ID: snowflake.ID(100 + i), OrgID: orgID, InvoiceNumber: number, Type: domain.InvoiceTypeManual,
			Status: domain.InvoiceStatusIssued, Currency: "USD", BilledToName: "Harbor Clinic",
			IssueDate: now, DueDate: now, SubTotal: decimal.Zero, TaxRate: decimal.Zero,
			TaxAmount: decimal.Zero, TotalAmount: decimal.Zero, PaidAmount: decimal.Zero,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		}).Error)
	}
}

func TestLatestNumberOrdersByLength(t *testing.T) {
	db := testutil.NewDB(t, &domain.Invoice{}, &domain.InvoiceItem{})
	seedNumbers(t, db, "INV-2026-099999", "INV-2026-100000", "INV-2025-999999")

	latest, err := repository.Provide().LatestNumber(context.Background(), db, orgID, "INV-2026-")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-100000", latest)

	latest, err = repository.Provide().LatestNumber(context.Background(), db, orgID, "INV-2027-")
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestLatestNumberMatchesPrefixLiterally(t *testing.T) {
	db := testutil.NewDB(t, &domain.Invoice{}, &domain.InvoiceItem{})
	seedNumbers(t, db,
		"CL_INV-2026-000002",
		"CLXINV-2026-000009",
		"50%OFF-2026-000004",
		"500OFF-2026-000007",
		`A\B-2026-000003`,
		`A\\B-2026-000008`,
	)
	repo := repository.Provide()
	ctx := context.Background()

	cases := map[string]string{
		"CL_INV-2026-": "CL_INV-2026-000002",
		"50%OFF-2026-": "50%OFF-2026-000004",
		`A\B-2026-`:    `A\B-2026-000003`,
	}
	for prefix, want := range cases {
		latest, err := repo.LatestNumber(ctx, db, orgID, prefix)
		require.NoError(t, err)
		require.Equal(t, want, latest, prefix)
	}
}
