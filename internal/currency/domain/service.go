package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"gorm.io/gorm"
)

type UpsertRateRequest struct {
	BaseCurrency   string          `json:"base_currency" validate:"required,len=3"`
	TargetCurrency string          `json:"target_currency" validate:"required,len=3"`
	Rate           decimal.Decimal `json:"rate"`
	AsOf           *time.Time      `json:"as_of,omitempty"`
}

// Resolver resolves conversion rates between currencies. It never falls back
// to a default rate: an unresolvable pair fails with ErrRateNotFound.
type Resolver interface {
	GetRate(ctx context.Context, base, target string) (decimal.Decimal, error)
	UpsertRate(ctx context.Context, req UpsertRateRequest) (*ExchangeRate, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *ExchangeRate) error
	FindLatest(ctx context.Context, db *gorm.DB, base, target string) (*ExchangeRate, error)
}

var (
	ErrRateNotFound    = ierr.Sentinel("exchange_rate_not_found", ierr.ErrRateNotFound)
	ErrInvalidCurrency = ierr.Sentinel("invalid_currency", ierr.ErrValidation)
	ErrInvalidRate     = ierr.Sentinel("invalid_exchange_rate", ierr.ErrValidation)
	ErrInvalidMarkup   = ierr.Sentinel("invalid_markup", ierr.ErrValidation)
)
