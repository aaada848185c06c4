package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindByIDUnscoped(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).Unscoped().Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindSuccessor(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).Unscoped().Where("org_id = ? AND previous_subscription_id = ?", orgID, id))
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, statuses []subscriptiondomain.SubscriptionStatus) (*subscriptiondomain.Subscription, error) {
	return first(db.WithContext(ctx).
		Where("org_id = ? AND status IN ?", orgID, statuses).
		Order("start_date desc, id desc"))
}

func first(stmt *gorm.DB) (*subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	if err := stmt.Limit(1).Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}
	return &subscriptions[0], nil
}

func (r *repo) UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for key, value := range updates {
		values[key] = value
	}
	values["version"] = gorm.Expr("version + 1")

	result := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("org_id = ? AND id = ? AND version = ?", orgID, id, version).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&subscriptiondomain.Subscription{}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.ListFilter) ([]*subscriptiondomain.Subscription, error) {
	var subscriptions []*subscriptiondomain.Subscription
	stmt := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("org_id = ?", filter.OrgID)

	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.PlanID != "" {
		stmt = stmt.Where("plan_id = ?", filter.PlanID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(start_date < ?) OR (start_date = ? AND id < ?)",
			filter.Cursor.StartDate,
			filter.Cursor.StartDate,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("start_date desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListCandidateOrgIDs(ctx context.Context, db *gorm.DB, query subscriptiondomain.CandidateQuery) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Scopes(candidateScope(query)).
		Distinct("org_id").
		Order("org_id asc").
		Pluck("org_id", &orgIDs).Error
	return orgIDs, err
}

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, query subscriptiondomain.CandidateQuery) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Scopes(candidateScope(query)).
		Where("org_id = ?", orgID).
		Order("start_date asc, id asc").
		Find(&subscriptions).Error
	return subscriptions, err
}

func candidateScope(query subscriptiondomain.CandidateQuery) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if len(query.Statuses) > 0 {
			stmt = stmt.Where("status IN ?", query.Statuses)
		}
		if query.AutoRenew != nil {
			stmt = stmt.Where("auto_renew = ?", *query.AutoRenew)
		}
		if query.CancelAtPeriodEnd != nil {
			stmt = stmt.Where("cancel_at_period_end = ?", *query.CancelAtPeriodEnd)
		}
		if query.EndOnOrBefore != nil {
			stmt = stmt.Where("end_date <= ?", *query.EndOnOrBefore)
		}
		if query.StartOnOrBefore != nil {
			stmt = stmt.Where("start_date <= ?", *query.StartOnOrBefore)
		}
		if query.WithoutSuccessor {
			stmt = stmt.Where("NOT EXISTS (SELECT 1 FROM subscriptions successor WHERE successor.previous_subscription_id = subscriptions.id)")
		}
		return stmt
	}
}
