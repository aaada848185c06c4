package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	"github.com/smallbiznis/clinicbilling/internal/plan"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	"github.com/smallbiznis/clinicbilling/internal/validator"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Billing    config.BillingConfigProvider
	Catalog    plan.Catalog
	Repo       subscriptiondomain.Repository
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	billing    config.BillingConfigProvider
	catalog    plan.Catalog
	repo       subscriptiondomain.Repository
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		billing:    p.Billing,
		catalog:    p.Catalog,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) CreateSubscription(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.SubscriptionResult, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}
	if err := validator.ValidateRequest(req); err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}

	definition, err := s.catalog.Lookup(req.PlanID)
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}
	fee, err := definition.Fee(req.ExtraBranches, req.ExtraUsers)
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}
	if req.StartTrial && !definition.HasTrial() {
		return subscriptiondomain.SubscriptionResult{}, plan.ErrTrialNotAvailable
	}

	grace := s.billing.Get().DefaultGracePeriodDays
	if req.GracePeriodDays != nil {
		grace = *req.GracePeriodDays
	}

	now := s.clock.Now()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	anchor := start

	subscription := &subscriptiondomain.Subscription{
		ID:                       s.genID.Generate(),
		OrgID:                    orgID,
		PlanID:                   definition.ID,
		BillingCycle:             string(definition.BillingCycle),
		Status:                   subscriptiondomain.SubscriptionStatusActive,
		StartDate:                start,
		EndDate:                  start.AddDate(0, 0, definition.DurationDays),
		BillingCycleAnchor:       &anchor,
		IncludedBranchesSnapshot: definition.IncludedBranches,
		PurchasedBranches:        req.ExtraBranches,
		BonusBranches:            req.BonusBranches,
		IncludedUsersSnapshot:    definition.IncludedUsers,
		PurchasedUsers:           req.ExtraUsers,
		BonusUsers:               req.BonusUsers,
		Fee:                      fee,
		Currency:                 definition.Currency,
		AutoRenew:                req.AutoRenew,
		GracePeriodDays:          grace,
		Version:                  1,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if req.StartTrial {
		trialEnd := start.AddDate(0, 0, definition.TrialDays)
		subscription.TrialEndsAt = &trialEnd
		subscription.EndDate = trialEnd
	}
	if start.After(now) {
		subscription.Status = subscriptiondomain.SubscriptionStatusPending
	} else {
		subscription.ActivatedAt = &now
	}
	if !subscription.EndDate.After(subscription.StartDate) {
		return subscriptiondomain.SubscriptionResult{}, subscriptiondomain.ErrInvalidPeriod
	}

	result := subscriptiondomain.SubscriptionResult{Subscription: subscription}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindCurrent(ctx, tx, orgID, []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusPending,
		})
		if err != nil {
			return err
		}
		if current != nil {
			return subscriptiondomain.ErrSubscriptionExists
		}

		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return err
		}
		if req.StartTrial {
			return nil
		}

		invoice, err := s.invoiceSvc.GenerateInvoiceWithTx(ctx, tx,
			invoiceRequest(definition, subscription, invoicedomain.InvoiceTypeNew, newInvoiceKey(subscription.ID), now))
		if err != nil {
			return err
		}
		result.Invoice = invoice
		return nil
	})
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}

	s.metrics.RecordSubscriptionEvent(ctx, "created")
	metadata := map[string]any{"trial": req.StartTrial}
	if result.Invoice != nil {
		s.metrics.RecordInvoiceGenerated(ctx, string(result.Invoice.Type))
		metadata["invoice_id"] = result.Invoice.ID.String()
	}
	s.emitAudit(ctx, "subscription.created", subscription, metadata)
	logger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("plan_id", subscription.PlanID),
		zap.Bool("trial", req.StartTrial),
	)
	return result, nil
}

func (s *Service) Renew(ctx context.Context, req subscriptiondomain.RenewRequest) (subscriptiondomain.SubscriptionResult, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}
	if err := validator.ValidateRequest(req); err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}

	outcome, err := s.renew(ctx, orgID, req, s.clock.Now())
	if err != nil {
		return subscriptiondomain.SubscriptionResult{}, err
	}
	s.afterRenew(ctx, outcome)
	return outcome.result, nil
}

type renewOutcome struct {
	result            subscriptiondomain.SubscriptionResult
	predecessor       *subscriptiondomain.Subscription
	predecessorClosed bool
}

// renew creates the successor of req.SubscriptionID and its renewal
// invoice in one transaction.
func (s *Service) renew(ctx context.Context, orgID snowflake.ID, req subscriptiondomain.RenewRequest, now time.Time) (renewOutcome, error) {
	var outcome renewOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, req.SubscriptionID)
		if err != nil {
			return err
		}
		if old == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if old.Status != subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrSubscriptionNotActive
		}
		if old.CancelAtPeriodEnd {
			return subscriptiondomain.ErrCancellationScheduled
		}
		successor, err := s.repo.FindSuccessor(ctx, tx, orgID, old.ID)
		if err != nil {
			return err
		}
		if successor != nil {
			return subscriptiondomain.ErrAlreadyRenewed
		}

		planID := old.PlanID
		if req.PlanID != nil {
			planID = *req.PlanID
		}
		definition, err := s.catalog.Lookup(planID)
		if err != nil {
			return err
		}
		extraBranches := valueOr(req.ExtraBranches, old.PurchasedBranches)
		extraUsers := valueOr(req.ExtraUsers, old.PurchasedUsers)
		fee, err := definition.Fee(extraBranches, extraUsers)
		if err != nil {
			return err
		}

		start := old.EndDate
		next := &subscriptiondomain.Subscription{
			ID:                       s.genID.Generate(),
			OrgID:                    orgID,
			PlanID:                   definition.ID,
			BillingCycle:             string(definition.BillingCycle),
			Status:                   subscriptiondomain.SubscriptionStatusPending,
			StartDate:                start,
			EndDate:                  start.AddDate(0, 0, definition.DurationDays),
			BillingCycleAnchor:       old.BillingCycleAnchor,
			IncludedBranchesSnapshot: definition.IncludedBranches,
			PurchasedBranches:        extraBranches,
			BonusBranches:            valueOr(req.BonusBranches, old.BonusBranches),
			IncludedUsersSnapshot:    definition.IncludedUsers,
			PurchasedUsers:           extraUsers,
			BonusUsers:               valueOr(req.BonusUsers, old.BonusUsers),
			Fee:                      fee,
			Currency:                 definition.Currency,
			AutoRenew:                valueOr(req.AutoRenew, old.AutoRenew),
			GracePeriodDays:          old.GracePeriodDays,
			PreviousSubscriptionID:   &old.ID,
			Version:                  1,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if !next.EndDate.After(next.StartDate) {
			return subscriptiondomain.ErrInvalidPeriod
		}

		if !start.After(now) {
			next.Status = subscriptiondomain.SubscriptionStatusActive
			next.ActivatedAt = &now
			ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, old.ID, old.Version, map[string]any{
				"status":     subscriptiondomain.SubscriptionStatusExpired,
				"expired_at": now,
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return subscriptiondomain.ErrConcurrentUpdate
			}
			outcome.predecessorClosed = true
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return subscriptiondomain.ErrAlreadyRenewed
			}
			return err
		}

		invoice, err := s.invoiceSvc.GenerateInvoiceWithTx(ctx, tx,
			invoiceRequest(definition, next, invoicedomain.InvoiceTypeRenewal, renewalInvoiceKey(next.ID), now))
		if err != nil {
			return err
		}

		outcome.result = subscriptiondomain.SubscriptionResult{Subscription: next, Invoice: invoice}
		outcome.predecessor = old
		return nil
	})
	return outcome, err
}

func (s *Service) afterRenew(ctx context.Context, outcome renewOutcome) {
	next := outcome.result.Subscription
	s.metrics.RecordSubscriptionEvent(ctx, "renewed")
	metadata := map[string]any{
		"previous_subscription_id": outcome.predecessor.ID.String(),
		"status":                   string(next.Status),
	}
	if outcome.result.Invoice != nil {
		s.metrics.RecordInvoiceGenerated(ctx, string(outcome.result.Invoice.Type))
		metadata["invoice_id"] = outcome.result.Invoice.ID.String()
	}
	s.emitAudit(ctx, "subscription.renewed", next, metadata)
	if outcome.predecessorClosed {
		s.metrics.RecordSubscriptionEvent(ctx, "expired")
		s.emitAudit(ctx, "subscription.expired", outcome.predecessor, map[string]any{
			"successor_id": next.ID.String(),
		})
	}
	logger.WithContext(ctx, s.log).Info("subscription renewed",
		zap.String("subscription_id", next.ID.String()),
		zap.String("previous_subscription_id", outcome.predecessor.ID.String()),
		zap.String("status", string(next.Status)),
	)
}

// Cancel schedules cancellation at the end of the current period. The
// subscription stays active until the cancellation job observes its end. A
// renewal that has not started yet is cancelled with it.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*subscriptiondomain.Subscription, error) {
	reason = strings.TrimSpace(reason)
	var dropped *droppedRenewal
	subscription, changed, err := s.mutate(ctx, id, s.clock.Now(), func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
		if sub.Status != subscriptiondomain.SubscriptionStatusActive {
			return nil, subscriptiondomain.ErrSubscriptionNotActive
		}
		if sub.CancelAtPeriodEnd {
			return nil, nil
		}
		var err error
		dropped, err = s.cancelPendingSuccessor(ctx, tx, sub, reason, now)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"cancel_at_period_end": true,
			"cancellation_reason":  nullableString(reason),
			"cancel_requested_at":  now,
			"updated_at":           now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordSubscriptionEvent(ctx, "cancel_scheduled")
		s.emitAudit(ctx, "subscription.cancel_scheduled", subscription, map[string]any{"reason": reason})
		s.afterDroppedRenewal(ctx, subscription, dropped, reason)
	}
	return subscription, nil
}

// CancelImmediately ends the subscription now, together with a pending
// renewal if one was already created. Cancelling a pending renewal directly
// turns off auto-renew on the period it would have followed.
func (s *Service) CancelImmediately(ctx context.Context, id snowflake.ID, reason string) (*subscriptiondomain.Subscription, error) {
	reason = strings.TrimSpace(reason)
	var dropped *droppedRenewal
	var voidedOwn *invoicedomain.Invoice
	subscription, changed, err := s.mutate(ctx, id, s.clock.Now(), func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
		switch sub.Status {
		case subscriptiondomain.SubscriptionStatusCancelled:
			return nil, nil
		case subscriptiondomain.SubscriptionStatusExpired:
			return nil, subscriptiondomain.ErrSubscriptionNotActive
		}

		updates := map[string]any{
			"status":               subscriptiondomain.SubscriptionStatusCancelled,
			"cancel_at_period_end": false,
			"cancellation_reason":  nullableString(reason),
			"cancelled_at":         now,
			"updated_at":           now,
		}

		if sub.Status == subscriptiondomain.SubscriptionStatusPending {
			invoice, voided, err := s.invoiceSvc.VoidByKeyWithTx(ctx, tx, renewalInvoiceKey(sub.ID), renewalVoidReason)
			if err != nil {
				return nil, err
			}
			if voided {
				voidedOwn = invoice
			}
			if sub.PreviousSubscriptionID != nil {
				if err := s.disableAutoRenew(ctx, tx, sub.OrgID, *sub.PreviousSubscriptionID, now); err != nil {
					return nil, err
				}
			}
			return updates, nil
		}

		var err error
		dropped, err = s.cancelPendingSuccessor(ctx, tx, sub, reason, now)
		if err != nil {
			return nil, err
		}
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordSubscriptionEvent(ctx, "cancelled")
		metadata := map[string]any{"reason": reason, "immediate": true}
		if voidedOwn != nil {
			s.metrics.RecordInvoiceTransition(ctx, "voided")
			metadata["voided_invoice_id"] = voidedOwn.ID.String()
		}
		s.emitAudit(ctx, "subscription.cancelled", subscription, metadata)
		s.afterDroppedRenewal(ctx, subscription, dropped, reason)
	}
	return subscription, nil
}

const renewalVoidReason = "renewal cancelled before start"

// droppedRenewal is a pending renewal cancelled together with the period it
// would have followed.
type droppedRenewal struct {
	subscription *subscriptiondomain.Subscription
	invoice      *invoicedomain.Invoice
}

// cancelPendingSuccessor cancels the not-yet-started renewal of sub, if any,
// and voids its renewal invoice in the same transaction. A renewal invoice
// with payments allocated fails with an invariant violation; the payments
// must be deallocated first. The cancelled renewal is unlinked from sub so
// sub can be renewed again after a reactivation.
func (s *Service) cancelPendingSuccessor(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, reason string, now time.Time) (*droppedRenewal, error) {
	successor, err := s.repo.FindSuccessor(ctx, tx, sub.OrgID, sub.ID)
	if err != nil {
		return nil, err
	}
	if successor == nil || successor.Status != subscriptiondomain.SubscriptionStatusPending {
		return nil, nil
	}

	invoice, voided, err := s.invoiceSvc.VoidByKeyWithTx(ctx, tx, renewalInvoiceKey(successor.ID), renewalVoidReason)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateGuarded(ctx, tx, sub.OrgID, successor.ID, successor.Version, map[string]any{
		"status":                   subscriptiondomain.SubscriptionStatusCancelled,
		"cancellation_reason":      nullableString(reason),
		"cancelled_at":             now,
		"previous_subscription_id": nil,
		"updated_at":               now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, subscriptiondomain.ErrConcurrentUpdate
	}

	dropped := &droppedRenewal{}
	dropped.subscription, err = s.repo.FindByID(ctx, tx, sub.OrgID, successor.ID)
	if err != nil {
		return nil, err
	}
	if voided {
		dropped.invoice = invoice
	}
	return dropped, nil
}

func (s *Service) disableAutoRenew(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, now time.Time) error {
	previous, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return err
	}
	if previous == nil || !previous.AutoRenew {
		return nil
	}
	ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, previous.ID, previous.Version, map[string]any{
		"auto_renew": false,
		"updated_at": now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return subscriptiondomain.ErrConcurrentUpdate
	}
	return nil
}

func (s *Service) afterDroppedRenewal(ctx context.Context, predecessor *subscriptiondomain.Subscription, dropped *droppedRenewal, reason string) {
	if dropped == nil {
		return
	}
	metadata := map[string]any{
		"reason":                   reason,
		"previous_subscription_id": predecessor.ID.String(),
	}
	if dropped.invoice != nil {
		s.metrics.RecordInvoiceTransition(ctx, "voided")
		metadata["voided_invoice_id"] = dropped.invoice.ID.String()
	}
	s.metrics.RecordSubscriptionEvent(ctx, "cancelled")
	s.emitAudit(ctx, "subscription.cancelled", dropped.subscription, metadata)
}

// Reactivate withdraws a scheduled cancellation before the period ends.
func (s *Service) Reactivate(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, changed, err := s.mutate(ctx, id, s.clock.Now(), func(_ *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
		if sub.Status != subscriptiondomain.SubscriptionStatusActive {
			return nil, subscriptiondomain.ErrSubscriptionNotActive
		}
		if !sub.CancelAtPeriodEnd {
			return nil, nil
		}
		if !now.Before(sub.EndDate) {
			return nil, subscriptiondomain.ErrReactivationWindowClosed
		}
		return map[string]any{
			"cancel_at_period_end": false,
			"cancellation_reason":  nil,
			"cancel_requested_at":  nil,
			"updated_at":           now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordSubscriptionEvent(ctx, "reactivated")
		s.emitAudit(ctx, "subscription.reactivated", subscription, nil)
	}
	return subscription, nil
}

func (s *Service) Update(ctx context.Context, req subscriptiondomain.UpdateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	changes := map[string]any{}
	subscription, changed, err := s.mutate(ctx, req.ID, s.clock.Now(), func(_ *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
		switch sub.Status {
		case subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusPending:
		default:
			return nil, subscriptiondomain.ErrSubscriptionNotActive
		}
		if req.AutoRenew != nil && *req.AutoRenew != sub.AutoRenew {
			changes["auto_renew"] = *req.AutoRenew
		}
		if req.GracePeriodDays != nil && *req.GracePeriodDays != sub.GracePeriodDays {
			changes["grace_period_days"] = *req.GracePeriodDays
		}
		if req.BonusBranches != nil && *req.BonusBranches != sub.BonusBranches {
			changes["bonus_branches"] = *req.BonusBranches
		}
		if req.BonusUsers != nil && *req.BonusUsers != sub.BonusUsers {
			changes["bonus_users"] = *req.BonusUsers
		}
		if len(changes) == 0 {
			return nil, nil
		}
		updates := map[string]any{"updated_at": now}
		for key, value := range changes {
			updates[key] = value
		}
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.emitAudit(ctx, "subscription.updated", subscription, changes)
	}
	return subscription, nil
}

// Delete soft deletes a closed subscription.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return err
	}

	var deleted *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		switch sub.Status {
		case subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusPending:
			return subscriptiondomain.ErrSubscriptionStillActive
		}
		deleted = sub
		return s.repo.SoftDelete(ctx, tx, orgID, id)
	})
	if err != nil {
		return err
	}
	s.emitAudit(ctx, "subscription.deleted", deleted, nil)
	return nil
}

// mutate locks the subscription and applies the updates returned by apply.
// A nil update map leaves the row untouched.
func (s *Service) mutate(
	ctx context.Context,
	id snowflake.ID,
	now time.Time,
	apply func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error),
) (*subscriptiondomain.Subscription, bool, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if id == 0 {
		return nil, false, subscriptiondomain.ErrInvalidSubscriptionID
	}

	var result *subscriptiondomain.Subscription
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		updates, err := apply(tx, sub, now)
		if err != nil {
			return err
		}
		if updates != nil {
			ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, id, sub.Version, updates)
			if err != nil {
				return err
			}
			if !ok {
				return subscriptiondomain.ErrConcurrentUpdate
			}
			changed = true
		}

		result, err = s.repo.FindByID(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// GetCurrent returns the tenant's active subscription.
func (s *Service) GetCurrent(ctx context.Context) (*subscriptiondomain.Subscription, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindCurrent(ctx, s.db, orgID, []subscriptiondomain.SubscriptionStatus{
		subscriptiondomain.SubscriptionStatusActive,
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) History(ctx context.Context, id snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByIDUnscoped(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	chain := []subscriptiondomain.Subscription{*current}
	seen := map[snowflake.ID]struct{}{current.ID: {}}
	for current.PreviousSubscriptionID != nil {
		previousID := *current.PreviousSubscriptionID
		if _, ok := seen[previousID]; ok {
			break
		}
		previous, err := s.repo.FindByIDUnscoped(ctx, s.db, orgID, previousID)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			break
		}
		seen[previousID] = struct{}{}
		chain = append(chain, *previous)
		current = previous
	}
	return chain, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	var cursor *subscriptiondomain.SubscriptionCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidPageToken
		}
		startDate, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidPageToken
		}
		cursor = &subscriptiondomain.SubscriptionCursor{ID: id, StartDate: startDate}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, subscriptiondomain.ListFilter{
		OrgID:  orgID,
		Status: req.Status,
		PlanID: strings.ToUpper(strings.TrimSpace(req.PlanID)),
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, limit, func(item *subscriptiondomain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.StartDate.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	subscriptions := make([]subscriptiondomain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}
	return subscriptiondomain.ListSubscriptionResponse{PageInfo: pageInfo, Subscriptions: subscriptions}, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, sub *subscriptiondomain.Subscription, extra map[string]any) {
	if s.auditSvc == nil || sub == nil {
		return
	}
	metadata := map[string]any{
		"plan_id":      sub.PlanID,
		"status":       string(sub.Status),
		"start_date":   sub.StartDate.Format(time.RFC3339),
		"end_date":     sub.EndDate.Format(time.RFC3339),
		"fee":          sub.Fee.String(),
		"max_branches": sub.MaxBranches(),
		"max_users":    sub.MaxUsers(),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := sub.ID.String()
	orgID := sub.OrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetSubscription, &targetID, metadata)
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, subscriptiondomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func valueOr[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
