package migration

import (
	"strings"
	"testing"

	"github.com/smallbiznis/clinicbilling/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrateCreatesBillingTables(t *testing.T) {
	conn := testutil.NewDB(t)

	require.NoError(t, AutoMigrate(conn))
	// Idempotent on an existing schema.
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{
		"tenant_billing_profiles",
		"exchange_rates",
		"subscriptions",
		"invoices",
		"invoice_items",
		"payments",
		"payment_cheque_details",
		"payment_allocations",
		"audit_logs",
	} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)

	var up, down int
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			down++
		}
	}
	require.NotZero(t, up)
	require.Equal(t, up, down)
}

func TestAutoMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}
