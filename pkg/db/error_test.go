package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	require.False(t, IsDuplicateKeyErr(nil))
	require.False(t, IsDuplicateKeyErr(errors.New("boom")))
	require.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	require.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: invoices.org_id, invoices.invoice_number")))
	require.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	require.Error(t, err)

	d, err := Dialect(Config{Type: TypeSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())
}
