package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	// FindByIDUnscoped includes soft-deleted rows; used to walk renewal chains.
	FindByIDUnscoped(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	FindSuccessor(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	FindCurrent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, statuses []SubscriptionStatus) (*Subscription, error)
	// UpdateGuarded applies updates only when the stored version matches and
	// bumps the version. It reports whether a row changed.
	UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Subscription, error)
	ListCandidateOrgIDs(ctx context.Context, db *gorm.DB, query CandidateQuery) ([]snowflake.ID, error)
	ListCandidates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, query CandidateQuery) ([]Subscription, error)
}
