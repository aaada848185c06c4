package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(payment).Error
}

func (r *repo) InsertCheque(ctx context.Context, db *gorm.DB, cheque *domain.ChequeDetail) error {
	return db.WithContext(ctx).Create(cheque).Error
}

func (r *repo) UpdateCheque(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.ChequeDetail{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) findOne(stmt *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var payments []domain.Payment
	err := stmt.
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("ChequeDetail").
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return &payments[0], nil
}

func (r *repo) UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for key, value := range updates {
		values[key] = value
	}
	values["version"] = gorm.Expr("version + 1")

	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND id = ? AND version = ?", orgID, id, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{}).
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("ChequeDetail").
		Where("org_id = ?", filter.OrgID)

	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Method != nil {
		stmt = stmt.Where("method = ?", *filter.Method)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, allocation *domain.PaymentAllocation) error {
	return db.WithContext(ctx).Create(allocation).Error
}

func (r *repo) UpdateAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.PaymentAllocation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.PaymentAllocation{}).Error
}

func (r *repo) ListAllocationsByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]domain.PaymentAllocation, error) {
	var allocations []domain.PaymentAllocation
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("id asc").
		Find(&allocations).Error
	return allocations, err
}
