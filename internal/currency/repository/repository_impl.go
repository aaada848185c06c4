package repository

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/currency/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.ExchangeRate) error {
	if rate == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO exchange_rates (id, base_currency, target_currency, rate, last_updated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.BaseCurrency,
		rate.TargetCurrency,
		rate.Rate,
		rate.LastUpdated,
		rate.CreatedAt,
	).Error
}

// FindLatest returns the most recently updated edge base -> target, or nil.
func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, base, target string) (*domain.ExchangeRate, error) {
	var rates []domain.ExchangeRate
	err := db.WithContext(ctx).
		Where("base_currency = ? AND target_currency = ?", base, target).
		Order("last_updated DESC").
		Order("id DESC").
		Limit(1).
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}
