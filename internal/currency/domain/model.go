// Package domain contains exchange rate models and the markup rule.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ExchangeRate is a directed edge BaseCurrency -> TargetCurrency: one unit of
// the base currency buys Rate units of the target currency.
type ExchangeRate struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	BaseCurrency   string          `gorm:"type:varchar(3);not null;index:idx_exchange_rates_pair,priority:1" json:"base_currency"`
	TargetCurrency string          `gorm:"type:varchar(3);not null;index:idx_exchange_rates_pair,priority:2" json:"target_currency"`
	Rate           decimal.Decimal `gorm:"type:numeric(24,12);not null" json:"rate"`
	LastUpdated    time.Time       `gorm:"not null;index:idx_exchange_rates_pair,priority:3" json:"last_updated"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (ExchangeRate) TableName() string { return "exchange_rates" }
