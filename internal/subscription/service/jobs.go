package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProcessAutoRenewals renews active auto-renewing subscriptions whose period
// ends inside the renewal window. A subscription that already has a successor
// is skipped, so repeated runs create at most one renewal.
func (s *Service) ProcessAutoRenewals(ctx context.Context, now time.Time) (int, error) {
	window := now.AddDate(0, 0, s.billing.Get().RenewalWindowDays)
	query := subscriptiondomain.CandidateQuery{
		Statuses:          []subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusActive},
		AutoRenew:         lo.ToPtr(true),
		CancelAtPeriodEnd: lo.ToPtr(false),
		EndOnOrBefore:     &window,
		WithoutSuccessor:  true,
	}
	return s.forEachCandidate(ctx, "auto_renewal", query, func(ctx context.Context, orgID snowflake.ID, candidate subscriptiondomain.Subscription) (bool, error) {
		outcome, err := s.renew(ctx, orgID, subscriptiondomain.RenewRequest{SubscriptionID: candidate.ID}, now)
		if err != nil {
			if isStaleCandidate(err) {
				return false, nil
			}
			return false, err
		}
		s.afterRenew(ctx, outcome)
		return true, nil
	})
}

// ProcessScheduledCancellations closes subscriptions whose cancellation was
// requested for the end of a period that has now passed.
func (s *Service) ProcessScheduledCancellations(ctx context.Context, now time.Time) (int, error) {
	query := subscriptiondomain.CandidateQuery{
		Statuses:          []subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusActive},
		CancelAtPeriodEnd: lo.ToPtr(true),
		EndOnOrBefore:     &now,
	}
	return s.forEachCandidate(ctx, "scheduled_cancellation", query, func(ctx context.Context, _ snowflake.ID, candidate subscriptiondomain.Subscription) (bool, error) {
		sub, changed, err := s.mutate(ctx, candidate.ID, now, func(_ *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
			if sub.Status != subscriptiondomain.SubscriptionStatusActive || !sub.CancelAtPeriodEnd || sub.EndDate.After(now) {
				return nil, nil
			}
			return map[string]any{
				"status":       subscriptiondomain.SubscriptionStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}, nil
		})
		if err != nil || !changed {
			return false, err
		}
		s.metrics.RecordSubscriptionEvent(ctx, "cancelled")
		s.emitAudit(ctx, "subscription.cancelled", sub, map[string]any{"scheduled": true})
		return true, nil
	})
}

// ProcessExpirations expires subscriptions that will not renew once their
// grace period has elapsed.
func (s *Service) ProcessExpirations(ctx context.Context, now time.Time) (int, error) {
	query := subscriptiondomain.CandidateQuery{
		Statuses:          []subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusActive},
		AutoRenew:         lo.ToPtr(false),
		CancelAtPeriodEnd: lo.ToPtr(false),
		EndOnOrBefore:     &now,
	}
	return s.forEachCandidate(ctx, "expiration", query, func(ctx context.Context, _ snowflake.ID, candidate subscriptiondomain.Subscription) (bool, error) {
		if graceEnd(candidate).After(now) {
			return false, nil
		}
		sub, changed, err := s.mutate(ctx, candidate.ID, now, func(_ *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
			if sub.Status != subscriptiondomain.SubscriptionStatusActive || sub.AutoRenew || sub.CancelAtPeriodEnd {
				return nil, nil
			}
			if graceEnd(*sub).After(now) {
				return nil, nil
			}
			return map[string]any{
				"status":     subscriptiondomain.SubscriptionStatusExpired,
				"expired_at": now,
				"updated_at": now,
			}, nil
		})
		if err != nil || !changed {
			return false, err
		}
		s.metrics.RecordSubscriptionEvent(ctx, "expired")
		s.emitAudit(ctx, "subscription.expired", sub, nil)
		return true, nil
	})
}

// ActivateFutureSubscriptions activates pending renewals whose start date has
// arrived and expires the predecessor they replace.
func (s *Service) ActivateFutureSubscriptions(ctx context.Context, now time.Time) (int, error) {
	query := subscriptiondomain.CandidateQuery{
		Statuses:        []subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusPending},
		StartOnOrBefore: &now,
	}
	return s.forEachCandidate(ctx, "activation", query, func(ctx context.Context, orgID snowflake.ID, candidate subscriptiondomain.Subscription) (bool, error) {
		var expired *subscriptiondomain.Subscription
		sub, changed, err := s.mutate(ctx, candidate.ID, now, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time) (map[string]any, error) {
			if sub.Status != subscriptiondomain.SubscriptionStatusPending || sub.StartDate.After(now) {
				return nil, nil
			}
			if sub.PreviousSubscriptionID != nil {
				previous, err := s.repo.FindByID(ctx, tx, orgID, *sub.PreviousSubscriptionID)
				if err != nil {
					return nil, err
				}
				if previous != nil && previous.Status == subscriptiondomain.SubscriptionStatusActive {
					ok, err := s.repo.UpdateGuarded(ctx, tx, orgID, previous.ID, previous.Version, map[string]any{
						"status":     subscriptiondomain.SubscriptionStatusExpired,
						"expired_at": now,
						"updated_at": now,
					})
					if err != nil {
						return nil, err
					}
					if !ok {
						return nil, subscriptiondomain.ErrConcurrentUpdate
					}
					expired = previous
				}
			}
			return map[string]any{
				"status":       subscriptiondomain.SubscriptionStatusActive,
				"activated_at": now,
				"updated_at":   now,
			}, nil
		})
		if err != nil || !changed {
			return false, err
		}
		s.metrics.RecordSubscriptionEvent(ctx, "activated")
		s.emitAudit(ctx, "subscription.activated", sub, nil)
		if expired != nil {
			s.metrics.RecordSubscriptionEvent(ctx, "expired")
			s.emitAudit(ctx, "subscription.expired", expired, map[string]any{"successor_id": sub.ID.String()})
		}
		return true, nil
	})
}

type candidateFunc func(ctx context.Context, orgID snowflake.ID, candidate subscriptiondomain.Subscription) (bool, error)

// forEachCandidate runs fn for every matching subscription, one tenant at a
// time. A failing candidate does not stop the batch; failures are joined into
// the returned error.
func (s *Service) forEachCandidate(ctx context.Context, job string, query subscriptiondomain.CandidateQuery, fn candidateFunc) (int, error) {
	log := logger.WithContext(ctx, s.log).With(zap.String("job", job))

	orgIDs, err := s.repo.ListCandidateOrgIDs(ctx, s.db, query)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for _, orgID := range orgIDs {
		orgCtx := orgcontext.WithOrgID(ctx, int64(orgID))
		candidates, err := s.repo.ListCandidates(orgCtx, s.db, orgID, query)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: list org %s: %w", job, orgID, err))
			continue
		}

		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return processed, errors.Join(errs...)
			}
			changed, err := fn(orgCtx, orgID, candidate)
			if err != nil {
				log.Warn("subscription job candidate failed",
					zap.String("org_id", orgID.String()),
					zap.String("subscription_id", candidate.ID.String()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: subscription %s: %w", job, candidate.ID, err))
				continue
			}
			if changed {
				processed++
			}
		}
	}

	if processed > 0 {
		log.Info("subscription job processed", zap.Int("count", processed))
	}
	return processed, errors.Join(errs...)
}

// isStaleCandidate reports errors meaning another writer already moved the
// subscription past the state the job selected it in.
func isStaleCandidate(err error) bool {
	return ierr.Is(err, subscriptiondomain.ErrAlreadyRenewed) ||
		ierr.Is(err, subscriptiondomain.ErrSubscriptionNotActive) ||
		ierr.Is(err, subscriptiondomain.ErrCancellationScheduled)
}

func graceEnd(sub subscriptiondomain.Subscription) time.Time {
	return sub.EndDate.AddDate(0, 0, sub.GracePeriodDays)
}
