package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/internal/cache"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/currency/domain"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inverseRatePrecision = 16

var one = decimal.NewFromInt(1)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Billing config.BillingConfigProvider
	Cache   cache.RateCache  `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	billing config.BillingConfigProvider
	cache   cache.RateCache
	metrics *metrics.Metrics
}

func NewResolver(p Params) domain.Resolver {
	return &Resolver{
		db:      p.DB,
		log:     p.Log.Named("currency.resolver"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		billing: p.Billing,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

// GetRate returns how many units of target one unit of base buys. Lookup
// order: identity, direct edge, inverse edge, cross rate through the system
// base currency.
func (r *Resolver) GetRate(ctx context.Context, base, target string) (decimal.Decimal, error) {
	base = normalizeCurrency(base)
	target = normalizeCurrency(target)
	if base == "" || target == "" {
		return decimal.Zero, domain.ErrInvalidCurrency
	}
	if base == target {
		return one, nil
	}

	cfg := r.billing.Get()
	if r.cache != nil {
		if rate, ok := r.cache.GetRate(base, target); ok {
			return rate, nil
		}
	}

	rate, err := r.resolve(ctx, base, target, normalizeCurrency(cfg.SystemBaseCurrency))
	if err != nil {
		if ierr.IsRateNotFound(err) {
			r.metrics.RecordRateLookupFailure(ctx)
			r.log.Warn("exchange rate not found",
				zap.String("base_currency", base),
				zap.String("target_currency", target),
			)
		}
		return decimal.Zero, err
	}

	if r.cache != nil {
		r.cache.SetRate(base, target, rate, cfg.RateCacheTTL)
	}
	return rate, nil
}

func (r *Resolver) resolve(ctx context.Context, base, target, systemBase string) (decimal.Decimal, error) {
	direct, err := r.latestPositive(ctx, base, target)
	if err != nil {
		return decimal.Zero, err
	}
	if direct != nil {
		return direct.Rate, nil
	}

	inverse, err := r.latestPositive(ctx, target, base)
	if err != nil {
		return decimal.Zero, err
	}
	if inverse != nil {
		return one.DivRound(inverse.Rate, inverseRatePrecision), nil
	}

	if systemBase != "" && systemBase != base && systemBase != target {
		toBase, err := r.latestPositive(ctx, systemBase, base)
		if err != nil {
			return decimal.Zero, err
		}
		toTarget, err := r.latestPositive(ctx, systemBase, target)
		if err != nil {
			return decimal.Zero, err
		}
		if toBase != nil && toTarget != nil {
			return toTarget.Rate.DivRound(toBase.Rate, inverseRatePrecision), nil
		}
	}

	return decimal.Zero, ierr.WithError(domain.ErrRateNotFound).
		WithHintf("no exchange rate from %s to %s", base, target).
		WithReportableDetails(map[string]any{
			"base_currency":   base,
			"target_currency": target,
		}).
		Mark(ierr.ErrRateNotFound)
}

// latestPositive returns the latest edge when its rate is usable. A stored
// non-positive rate is treated as missing rather than trusted.
func (r *Resolver) latestPositive(ctx context.Context, base, target string) (*domain.ExchangeRate, error) {
	rate, err := r.repo.FindLatest(ctx, r.db, base, target)
	if err != nil {
		return nil, err
	}
	if rate == nil || !rate.Rate.IsPositive() {
		return nil, nil
	}
	return rate, nil
}

func (r *Resolver) UpsertRate(ctx context.Context, req domain.UpsertRateRequest) (*domain.ExchangeRate, error) {
	base := normalizeCurrency(req.BaseCurrency)
	target := normalizeCurrency(req.TargetCurrency)
	if len(base) != 3 || len(target) != 3 || base == target {
		return nil, domain.ErrInvalidCurrency
	}
	if !req.Rate.IsPositive() {
		return nil, domain.ErrInvalidRate
	}

	now := r.clock.Now()
	asOf := now
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}
	rate := &domain.ExchangeRate{
		ID:             r.genID.Generate(),
		BaseCurrency:   base,
		TargetCurrency: target,
		Rate:           req.Rate,
		LastUpdated:    asOf,
		CreatedAt:      now,
	}
	if err := r.repo.Insert(ctx, r.db, rate); err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Flush()
	}
	r.log.Info("exchange rate recorded",
		zap.String("base_currency", base),
		zap.String("target_currency", target),
		zap.String("rate", req.Rate.String()),
	)
	return rate, nil
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
