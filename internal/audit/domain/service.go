package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action       string
	ActionPrefix string
	TargetType   string
	TargetID     string
	ActorType    string
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
	// History returns every entry recorded against one billing record,
	// oldest first.
	History(ctx context.Context, targetType string, targetID snowflake.ID) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
	ListByTarget(ctx context.Context, db *gorm.DB, orgID snowflake.ID, targetType, targetID string) ([]AuditLog, error)
}

var (
	ErrInvalidOrganization = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrInvalidPageToken    = ierr.Sentinel("invalid_page_token", ierr.ErrValidation)
	ErrInvalidTimeRange    = ierr.Sentinel("invalid_time_range", ierr.ErrValidation)
	ErrInvalidAction       = ierr.Sentinel("invalid_action", ierr.ErrValidation)
	ErrInvalidTarget       = ierr.Sentinel("invalid_audit_target", ierr.ErrValidation)
)
