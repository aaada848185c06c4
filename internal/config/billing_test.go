package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBillingConfigDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	require.Equal(t, "INV", cfg.InvoicePrefix)
	require.Equal(t, "USD", cfg.SystemBaseCurrency)
	require.Equal(t, 1, cfg.InvoiceNumberRetries)
	require.Equal(t, time.Minute, cfg.RateCacheTTL)
	require.True(t, cfg.DefaultTaxRate.IsZero())
}

func TestBillingConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := []byte(`billing:
  invoicePrefix: CLN
  defaultTaxRate: "0.1"
  renewalWindowDays: 3
  systemBaseCurrency: eur
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), content, 0o600))

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	require.Equal(t, "CLN", cfg.InvoicePrefix)
	require.True(t, cfg.DefaultTaxRate.Equal(decimal.RequireFromString("0.1")))
	require.Equal(t, 3, cfg.RenewalWindowDays)
	require.Equal(t, "EUR", cfg.SystemBaseCurrency)
	require.Equal(t, 14, cfg.PaymentTermDays)
}

func TestValidateBillingConfigRejectsNegatives(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.DefaultTaxRate = decimal.NewFromInt(-1)
	require.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.InvoicePrefix = ""
	require.Error(t, validateBillingConfig(cfg))

	require.NoError(t, validateBillingConfig(DefaultBillingConfig()))
}
