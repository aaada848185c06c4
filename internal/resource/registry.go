package resource

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/logger"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnknownKind         = ierr.Sentinel("unknown_resource_kind", ierr.ErrValidation)
	ErrInvalidResourceID   = ierr.Sentinel("invalid_resource_id", ierr.ErrValidation)
	ErrInvalidOrganization = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrResourceNotFound    = ierr.Sentinel("resource_not_found", ierr.ErrNotFound)
)

// Ref addresses one resource. A zero OrgID means the caller's own tenant.
type Ref struct {
	Kind  Kind
	OrgID snowflake.ID
	ID    snowflake.ID
}

type loader func(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (Resource, error)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Subscriptions subscriptiondomain.Repository
	Invoices      invoicedomain.Repository
	Payments      paymentdomain.Repository
}

// Registry resolves a Ref to a typed Resource through a fixed dispatch table.
type Registry struct {
	db      *gorm.DB
	log     *zap.Logger
	loaders map[Kind]loader
}

func NewRegistry(p Params) *Registry {
	return &Registry{
		db:  p.DB,
		log: p.Log.Named("resource.registry"),
		loaders: map[Kind]loader{
			KindSubscription: func(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (Resource, error) {
				sub, err := p.Subscriptions.FindByID(ctx, db, orgID, id)
				if err != nil || sub == nil {
					return nil, err
				}
				return SubscriptionResource{Subscription: sub}, nil
			},
			KindInvoice: func(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (Resource, error) {
				invoice, err := p.Invoices.FindByID(ctx, db, orgID, id)
				if err != nil || invoice == nil {
					return nil, err
				}
				return InvoiceResource{Invoice: invoice}, nil
			},
			KindPayment: func(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (Resource, error) {
				payment, err := p.Payments.FindByID(ctx, db, orgID, id)
				if err != nil || payment == nil {
					return nil, err
				}
				return PaymentResource{Payment: payment}, nil
			},
		},
	}
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []Kind {
	return []Kind{KindSubscription, KindInvoice, KindPayment}
}

// Lookup loads the referenced resource. Reading another tenant's resource
// requires a super-admin caller; otherwise it is reported as not found so
// existence does not leak across tenants.
func (r *Registry) Lookup(ctx context.Context, ref Ref) (Resource, error) {
	load, ok := r.loaders[ref.Kind]
	if !ok {
		return nil, ierr.WithError(ErrUnknownKind).
			WithHintf("unknown resource kind %q", ref.Kind).
			Mark(ierr.ErrValidation)
	}
	if ref.ID == 0 {
		return nil, ErrInvalidResourceID
	}
	tenant, ok := orgcontext.TenantFromContext(ctx)
	if !ok {
		return nil, ErrInvalidOrganization
	}

	orgID := ref.OrgID
	if orgID == 0 {
		orgID = tenant.OrgID
	}
	if orgID != tenant.OrgID && !tenant.SuperAdmin {
		logger.WithContext(ctx, r.log).Warn("cross-tenant resource lookup denied",
			zap.String("kind", string(ref.Kind)),
			zap.String("target_org_id", orgID.String()),
		)
		return nil, ErrResourceNotFound
	}

	resource, err := load(ctx, r.db, orgID, ref.ID)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, ErrResourceNotFound
	}
	return resource, nil
}
