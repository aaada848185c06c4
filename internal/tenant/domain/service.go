package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"gorm.io/gorm"
)

type UpsertProfileRequest struct {
	LegalName          string          `json:"legal_name" validate:"required"`
	Address            string          `json:"address"`
	TaxID              string          `json:"tax_id"`
	FunctionalCurrency string          `json:"functional_currency" validate:"required,len=3"`
	MarkupType         string          `json:"markup_type" validate:"omitempty,oneofci=NONE PERCENTAGE"`
	MarkupValue        decimal.Decimal `json:"markup_value"`
}

type Service interface {
	GetProfile(ctx context.Context, orgID snowflake.ID) (*BillingProfile, error)
	// GetProfileTx reads the profile through tx so callers can snapshot it
	// inside their own transaction.
	GetProfileTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (*BillingProfile, error)
	UpsertProfile(ctx context.Context, req UpsertProfileRequest) (*BillingProfile, error)
}

type Repository interface {
	FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*BillingProfile, error)
	Upsert(ctx context.Context, db *gorm.DB, profile *BillingProfile) error
}

var (
	ErrInvalidOrganization = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrProfileNotFound     = ierr.Sentinel("billing_profile_not_found", ierr.ErrNotFound)
)
