package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "INV", issued, 42)
	require.NoError(t, err)
	require.Equal(t, "INV-2026-00042", got)

	got, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "INV", issued, 123456)
	require.NoError(t, err)
	require.Equal(t, "INV-2026-123456", got)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "INV", issued, 0)
	require.Error(t, err)

	_, err = FormatInvoiceNumber("{PREFIX}-{DAY}", "INV", issued, 1)
	require.Error(t, err)
}

func TestParseSequence(t *testing.T) {
	prefix := YearPrefix("INV", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "INV-2026-", prefix)

	seq, err := ParseSequence("INV-2026-00042", prefix)
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)

	seq, err = ParseSequence("INV-2026-100000", prefix)
	require.NoError(t, err)
	require.Equal(t, int64(100000), seq)

	_, err = ParseSequence("INV-2025-00001", prefix)
	require.Error(t, err)

	_, err = ParseSequence("INV-2026-abc", prefix)
	require.Error(t, err)
}
