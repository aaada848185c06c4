package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) findOne(ctx context.Context, stmt *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	var invoices []domain.Invoice
	err := stmt.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		Limit(1).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

// likeEscaper escapes LIKE wildcards so a prefix matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LatestNumber returns the highest number sharing numberPrefix. Ordering by
// length first keeps INV-2026-100000 above INV-2026-99999.
func (r *repo) LatestNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, numberPrefix string) (string, error) {
	var numbers []string
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where(`org_id = ? AND invoice_number LIKE ? ESCAPE '\'`, orgID, likeEscaper.Replace(numberPrefix)+"%").
		Order("LENGTH(invoice_number) DESC").
		Order("invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &numbers).Error
	if err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for key, value := range updates {
		values[key] = value
	}
	values["version"] = gorm.Expr("version + 1")

	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND id = ? AND version = ?", orgID, id, version).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("org_id = ?", filter.OrgID)

	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		stmt = stmt.Where("type = ?", *filter.Type)
	}
	if filter.SubscriptionID != nil {
		stmt = stmt.Where("subscription_id = ?", *filter.SubscriptionID)
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

	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListOutstanding(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND status IN ?", orgID, []domain.InvoiceStatus{
			domain.InvoiceStatusIssued,
			domain.InvoiceStatusPartiallyPaid,
			domain.InvoiceStatusOverdue,
		}).
		Order("id asc").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) ListOrgIDsDueBefore(ctx context.Context, db *gorm.DB, statuses []domain.InvoiceStatus, dueBefore time.Time) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Distinct("org_id").
		Where("status IN ? AND due_date < ?", statuses, dueBefore).
		Order("org_id asc").
		Pluck("org_id", &orgIDs).Error
	return orgIDs, err
}

func (r *repo) ListDueBefore(ctx context.Context, db *gorm.DB, orgID snowflake.ID, statuses []domain.InvoiceStatus, dueBefore time.Time) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND status IN ? AND due_date < ?", orgID, statuses, dueBefore).
		Order("due_date asc, id asc").
		Find(&invoices).Error
	return invoices, err
}
