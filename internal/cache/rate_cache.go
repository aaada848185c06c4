package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const defaultCleanupInterval = 5 * time.Minute

// RateCache stores resolved exchange rates on the hot path of payment recording.
type RateCache interface {
	GetRate(base, target string) (decimal.Decimal, bool)
	SetRate(base, target string, rate decimal.Decimal, ttl time.Duration)
	Flush()
}

type rateCache struct {
	store *gocache.Cache
}

// NewRateCache returns an in-memory rate cache. Entries never outlive the TTL
// passed to SetRate.
func NewRateCache() RateCache {
	return &rateCache{store: gocache.New(gocache.NoExpiration, defaultCleanupInterval)}
}

func (c *rateCache) GetRate(base, target string) (decimal.Decimal, bool) {
	value, ok := c.store.Get(cacheKey(base, target))
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := value.(decimal.Decimal)
	return rate, ok
}

func (c *rateCache) SetRate(base, target string, rate decimal.Decimal, ttl time.Duration) {
	if ttl <= 0 || !rate.IsPositive() {
		return
	}
	c.store.Set(cacheKey(base, target), rate, ttl)
}

func (c *rateCache) Flush() {
	c.store.Flush()
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
