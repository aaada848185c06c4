// Package domain contains persistence models for clinic subscriptions.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	// SubscriptionStatusPending marks a renewal created ahead of its start date.
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription is a clinic's billing agreement for one period. Renewals
// create a new row linked through PreviousSubscriptionID.
type Subscription struct {
	ID                       snowflake.ID       `gorm:"primaryKey" json:"id"`
	OrgID                    snowflake.ID       `gorm:"not null;index" json:"org_id"`
	PlanID                   string             `gorm:"type:varchar(32);not null" json:"plan_id"`
	BillingCycle             string             `gorm:"type:varchar(16);not null" json:"billing_cycle"`
	Status                   SubscriptionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	StartDate                time.Time          `gorm:"not null;index" json:"start_date"`
	EndDate                  time.Time          `gorm:"not null;index" json:"end_date"`
	TrialEndsAt              *time.Time         `json:"trial_ends_at,omitempty"`
	BillingCycleAnchor       *time.Time         `json:"billing_cycle_anchor,omitempty"`
	CancelAtPeriodEnd        bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CancellationReason       *string            `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CancelRequestedAt        *time.Time         `json:"cancel_requested_at,omitempty"`
	CancelledAt              *time.Time         `json:"cancelled_at,omitempty"`
	ExpiredAt                *time.Time         `json:"expired_at,omitempty"`
	ActivatedAt              *time.Time         `json:"activated_at,omitempty"`
	IncludedBranchesSnapshot int                `gorm:"not null" json:"included_branches_snapshot"`
	PurchasedBranches        int                `gorm:"not null;default:0" json:"purchased_branches"`
	BonusBranches            int                `gorm:"not null;default:0" json:"bonus_branches"`
	IncludedUsersSnapshot    int                `gorm:"not null" json:"included_users_snapshot"`
	PurchasedUsers           int                `gorm:"not null;default:0" json:"purchased_users"`
	BonusUsers               int                `gorm:"not null;default:0" json:"bonus_users"`
	Fee                      decimal.Decimal    `gorm:"type:numeric(20,4);not null" json:"fee"`
	Currency                 string             `gorm:"type:varchar(3);not null" json:"currency"`
	AutoRenew                bool               `gorm:"not null;default:false" json:"auto_renew"`
	GracePeriodDays          int                `gorm:"not null;default:0" json:"grace_period_days"`
	PreviousSubscriptionID   *snowflake.ID      `gorm:"uniqueIndex:ux_subscriptions_previous" json:"previous_subscription_id,omitempty"`
	Version                  int64              `gorm:"not null;default:1" json:"version"`
	CreatedAt                time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time          `gorm:"not null" json:"updated_at"`
	DeletedAt                gorm.DeletedAt     `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// MaxBranches is the branch allowance for the period.
func (s Subscription) MaxBranches() int {
	return s.IncludedBranchesSnapshot + s.PurchasedBranches + s.BonusBranches
}

// MaxUsers is the user allowance for the period.
func (s Subscription) MaxUsers() int {
	return s.IncludedUsersSnapshot + s.PurchasedUsers + s.BonusUsers
}

// MarshalJSON adds the derived allowances to the stored columns.
func (s Subscription) MarshalJSON() ([]byte, error) {
	type subscription Subscription
	return json.Marshal(struct {
		subscription
		MaxBranches int `json:"max_branches"`
		MaxUsers    int `json:"max_users"`
	}{subscription(s), s.MaxBranches(), s.MaxUsers()})
}

// IsTrialing reports whether now falls inside the trial.
func (s Subscription) IsTrialing(now time.Time) bool {
	return s.TrialEndsAt != nil && s.Status == SubscriptionStatusActive && now.Before(*s.TrialEndsAt)
}

// CandidateQuery selects subscriptions for the lifecycle jobs.
type CandidateQuery struct {
	Statuses          []SubscriptionStatus
	AutoRenew         *bool
	CancelAtPeriodEnd *bool
	EndOnOrBefore     *time.Time
	StartOnOrBefore   *time.Time
	WithoutSuccessor  bool
}

type SubscriptionCursor struct {
	ID        snowflake.ID
	StartDate time.Time
}

type ListFilter struct {
	OrgID  snowflake.ID
	Status *SubscriptionStatus
	PlanID string
	Cursor *SubscriptionCursor
	Limit  int
}
