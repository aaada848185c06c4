// Package domain contains the tenant billing profile.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	currencydomain "github.com/smallbiznis/clinicbilling/internal/currency/domain"
)

// BillingProfile is the billed-to identity and currency policy of a clinic.
// Invoices copy the identity fields at issue time.
type BillingProfile struct {
	OrgID              snowflake.ID              `gorm:"primaryKey;autoIncrement:false" json:"org_id"`
	LegalName          string                    `gorm:"type:text;not null" json:"legal_name"`
	Address            string                    `gorm:"type:text;not null;default:''" json:"address"`
	TaxID              string                    `gorm:"type:text;not null;default:''" json:"tax_id"`
	FunctionalCurrency string                    `gorm:"type:varchar(3);not null" json:"functional_currency"`
	MarkupType         currencydomain.MarkupType `gorm:"type:varchar(16);not null;default:'NONE'" json:"markup_type"`
	MarkupValue        decimal.Decimal           `gorm:"type:numeric(12,4);not null;default:0" json:"markup_value"`
	CreatedAt          time.Time                 `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time                 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingProfile) TableName() string { return "tenant_billing_profiles" }
