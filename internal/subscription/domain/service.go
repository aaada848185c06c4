package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	PlanID        string `json:"plan_id" validate:"required"`
	ExtraBranches int    `json:"extra_branches" validate:"gte=0"`
	ExtraUsers    int    `json:"extra_users" validate:"gte=0"`
	BonusBranches int    `json:"bonus_branches" validate:"gte=0"`
	BonusUsers    int    `json:"bonus_users" validate:"gte=0"`
	AutoRenew     bool   `json:"auto_renew"`
	StartTrial    bool   `json:"start_trial"`
	// GracePeriodDays defaults to the configured grace period.
	GracePeriodDays *int `json:"grace_period_days,omitempty" validate:"omitempty,gte=0"`
	// StartDate defaults to now.
	StartDate *time.Time `json:"start_date,omitempty"`
}

// RenewRequest renews a subscription. Nil overrides carry the predecessor's
// values forward.
type RenewRequest struct {
	SubscriptionID snowflake.ID `json:"subscription_id" validate:"required"`
	PlanID         *string      `json:"plan_id,omitempty"`
	ExtraBranches  *int         `json:"extra_branches,omitempty" validate:"omitempty,gte=0"`
	ExtraUsers     *int         `json:"extra_users,omitempty" validate:"omitempty,gte=0"`
	BonusBranches  *int         `json:"bonus_branches,omitempty" validate:"omitempty,gte=0"`
	BonusUsers     *int         `json:"bonus_users,omitempty" validate:"omitempty,gte=0"`
	AutoRenew      *bool        `json:"auto_renew,omitempty"`
}

type UpdateSubscriptionRequest struct {
	ID              snowflake.ID `json:"id" validate:"required"`
	AutoRenew       *bool        `json:"auto_renew,omitempty"`
	GracePeriodDays *int         `json:"grace_period_days,omitempty" validate:"omitempty,gte=0"`
	BonusBranches   *int         `json:"bonus_branches,omitempty" validate:"omitempty,gte=0"`
	BonusUsers      *int         `json:"bonus_users,omitempty" validate:"omitempty,gte=0"`
}

// SubscriptionResult pairs a subscription with the invoice billed for it.
// Invoice is nil for trials.
type SubscriptionResult struct {
	Subscription *Subscription          `json:"subscription"`
	Invoice      *invoicedomain.Invoice `json:"invoice,omitempty"`
}

type ListSubscriptionRequest struct {
	pagination.Pagination
	Status *SubscriptionStatus
	PlanID string
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (SubscriptionResult, error)
	Renew(ctx context.Context, req RenewRequest) (SubscriptionResult, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Subscription, error)
	CancelImmediately(ctx context.Context, id snowflake.ID, reason string) (*Subscription, error)
	Reactivate(ctx context.Context, id snowflake.ID) (*Subscription, error)
	Update(ctx context.Context, req UpdateSubscriptionRequest) (*Subscription, error)
	Delete(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	GetCurrent(ctx context.Context) (*Subscription, error)
	// History returns the renewal chain ending at id, newest first.
	History(ctx context.Context, id snowflake.ID) ([]Subscription, error)

	ProcessAutoRenewals(ctx context.Context, now time.Time) (int, error)
	ProcessScheduledCancellations(ctx context.Context, now time.Time) (int, error)
	ProcessExpirations(ctx context.Context, now time.Time) (int, error)
	ActivateFutureSubscriptions(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrInvalidOrganization      = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrInvalidSubscriptionID    = ierr.Sentinel("invalid_subscription_id", ierr.ErrValidation)
	ErrInvalidPageToken         = ierr.Sentinel("invalid_page_token", ierr.ErrValidation)
	ErrSubscriptionNotFound     = ierr.Sentinel("subscription_not_found", ierr.ErrNotFound)
	ErrSubscriptionExists       = ierr.Sentinel("subscription_already_active", ierr.ErrConflict)
	ErrSubscriptionNotActive    = ierr.Sentinel("subscription_not_active", ierr.ErrConflict)
	ErrAlreadyRenewed           = ierr.Sentinel("subscription_already_renewed", ierr.ErrConflict)
	ErrCancellationScheduled    = ierr.Sentinel("subscription_cancellation_scheduled", ierr.ErrConflict)
	ErrConcurrentUpdate         = ierr.Sentinel("subscription_concurrent_update", ierr.ErrConflict)
	ErrReactivationWindowClosed = ierr.Sentinel("subscription_reactivation_window_closed", ierr.ErrInvariantViolation)
	ErrSubscriptionStillActive  = ierr.Sentinel("subscription_still_active", ierr.ErrInvariantViolation)
	ErrInvalidPeriod            = ierr.Sentinel("subscription_invalid_period", ierr.ErrInvariantViolation)
)
