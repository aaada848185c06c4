package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRateCacheStoresPositiveRates(t *testing.T) {
	c := NewRateCache()

	c.SetRate("USD", "EUR", decimal.RequireFromString("0.9"), time.Minute)
	rate, ok := c.GetRate("USD", "EUR")
	require.True(t, ok)
	require.True(t, rate.Equal(decimal.RequireFromString("0.9")))

	_, ok = c.GetRate("EUR", "USD")
	require.False(t, ok)
}

func TestRateCacheSkipsDisabledTTLAndZeroRates(t *testing.T) {
	c := NewRateCache()

	c.SetRate("USD", "EUR", decimal.RequireFromString("0.9"), 0)
	c.SetRate("USD", "IDR", decimal.Zero, time.Minute)

	_, ok := c.GetRate("USD", "EUR")
	require.False(t, ok)
	_, ok = c.GetRate("USD", "IDR")
	require.False(t, ok)
}

func TestRateCacheExpires(t *testing.T) {
	c := NewRateCache()
	c.SetRate("USD", "EUR", decimal.NewFromInt(1), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.GetRate("USD", "EUR")
	require.False(t, ok)
}

func TestRateCacheFlush(t *testing.T) {
	c := NewRateCache()
	c.SetRate("USD", "EUR", decimal.NewFromInt(1), time.Minute)
	c.Flush()

	_, ok := c.GetRate("USD", "EUR")
	require.False(t, ok)
}
