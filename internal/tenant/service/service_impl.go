package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	currencydomain "github.com/smallbiznis/clinicbilling/internal/currency/domain"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
	"github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetProfile(ctx context.Context, orgID snowflake.ID) (*domain.BillingProfile, error) {
	return s.GetProfileTx(ctx, s.db, orgID)
}

func (s *Service) GetProfileTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (*domain.BillingProfile, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	profile, err := s.repo.FindByOrg(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) UpsertProfile(ctx context.Context, req domain.UpsertProfileRequest) (*domain.BillingProfile, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	markupType, err := currencydomain.ParseMarkupType(req.MarkupType)
	if err != nil {
		return nil, err
	}
	if req.MarkupValue.IsNegative() {
		return nil, currencydomain.ErrInvalidMarkup
	}

	now := s.clock.Now()
	profile := &domain.BillingProfile{
		OrgID:              orgID,
		LegalName:          strings.TrimSpace(req.LegalName),
		Address:            strings.TrimSpace(req.Address),
		TaxID:              strings.TrimSpace(req.TaxID),
		FunctionalCurrency: strings.ToUpper(strings.TrimSpace(req.FunctionalCurrency)),
		MarkupType:         markupType,
		MarkupValue:        req.MarkupValue,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Upsert(ctx, s.db, profile); err != nil {
		return nil, err
	}
	s.log.Info("billing profile updated", zap.String("org_id", orgID.String()))
	return s.GetProfile(ctx, orgID)
}
