package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.BillingProfile, error) {
	var profiles []domain.BillingProfile
	if err := db.WithContext(ctx).Where("org_id = ?", orgID).Limit(1).Find(&profiles).Error; err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, profile *domain.BillingProfile) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"legal_name", "address", "tax_id", "functional_currency",
			"markup_type", "markup_value", "updated_at",
		}),
	}).Create(profile).Error
}
