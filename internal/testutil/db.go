// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory SQLite database and migrates models.
// The pool is pinned to one connection so every query sees the same memory
// database; code under test must therefore run queries inside a transaction
// on the transaction handle.
func NewDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return conn
}

// NewNode returns a snowflake node for ID generation in tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// TenantContext returns a context scoped to orgID with the given functional currency.
func TenantContext(orgID snowflake.ID, functionalCurrency string) context.Context {
	ctx := orgcontext.WithTenant(context.Background(), orgcontext.Tenant{
		OrgID:              orgID,
		FunctionalCurrency: functionalCurrency,
	})
	return orgcontext.WithActor(ctx, "test-user")
}

// Date builds a UTC midnight timestamp.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
