package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

type ItemInput struct {
	Description string          `json:"description" validate:"required"`
	Quantity    int64           `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PeriodStart *time.Time      `json:"period_start,omitempty"`
	PeriodEnd   *time.Time      `json:"period_end,omitempty"`
}

type GenerateInvoiceRequest struct {
	SubscriptionID *snowflake.ID    `json:"subscription_id,omitempty"`
	Type           InvoiceType      `json:"type" validate:"required,oneof=NEW RENEWAL MANUAL"`
	Currency       string           `json:"currency" validate:"required,len=3"`
	Items          []ItemInput      `json:"items" validate:"required,min=1,dive"`
	TaxRate        *decimal.Decimal `json:"tax_rate,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"max=255"`
	// IssueDate defaults to now.
	IssueDate *time.Time `json:"issue_date,omitempty"`
	// DueDate defaults to IssueDate plus the configured payment term.
	DueDate *time.Time `json:"due_date,omitempty"`
	// Draft leaves the invoice unissued until FinalizeInvoice.
	Draft bool `json:"draft,omitempty"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status         *InvoiceStatus
	Type           *InvoiceType
	SubscriptionID *snowflake.ID
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// CurrencyBalance is the outstanding receivable in one currency.
type CurrencyBalance struct {
	Currency   string          `json:"currency"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	Invoices   int             `json:"invoices"`
}

type Service interface {
	GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (*Invoice, error)
	// GenerateInvoiceWithTx generates inside the caller's transaction so the
	// invoice commits or rolls back with the caller's own writes.
	GenerateInvoiceWithTx(ctx context.Context, tx *gorm.DB, req GenerateInvoiceRequest) (*Invoice, error)
	FinalizeInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)
	// VoidByKeyWithTx voids the invoice generated under an idempotency key
	// inside the caller's transaction and reports whether it changed.
	VoidByKeyWithTx(ctx context.Context, tx *gorm.DB, key, reason string) (*Invoice, bool, error)
	WriteOff(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	OutstandingBalance(ctx context.Context) ([]CurrencyBalance, error)
	ProcessOverdueInvoices(ctx context.Context, now time.Time) (int, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*Invoice, error)
	LatestNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, numberPrefix string) (string, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// UpdateGuarded applies updates only when the stored version matches and
	// bumps the version. It reports whether a row changed.
	UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	ListOutstanding(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Invoice, error)
	ListOrgIDsDueBefore(ctx context.Context, db *gorm.DB, statuses []InvoiceStatus, dueBefore time.Time) ([]snowflake.ID, error)
	ListDueBefore(ctx context.Context, db *gorm.DB, orgID snowflake.ID, statuses []InvoiceStatus, dueBefore time.Time) ([]Invoice, error)
}

var (
	ErrInvalidOrganization   = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrInvalidInvoiceID      = ierr.Sentinel("invalid_invoice_id", ierr.ErrValidation)
	ErrInvalidItem           = ierr.Sentinel("invalid_invoice_item", ierr.ErrValidation)
	ErrInvalidTaxRate        = ierr.Sentinel("invalid_tax_rate", ierr.ErrValidation)
	ErrInvalidDueDate        = ierr.Sentinel("invalid_due_date", ierr.ErrValidation)
	ErrInvalidPageToken      = ierr.Sentinel("invalid_page_token", ierr.ErrValidation)
	ErrInvoiceNotFound       = ierr.Sentinel("invoice_not_found", ierr.ErrNotFound)
	ErrIdempotencyConflict   = ierr.Sentinel("invoice_idempotency_conflict", ierr.ErrConflict)
	ErrInvoiceNumberConflict = ierr.Sentinel("invoice_number_conflict", ierr.ErrConflict)
	ErrConcurrentUpdate      = ierr.Sentinel("invoice_concurrent_update", ierr.ErrConflict)
	ErrInvoiceNotDraft       = ierr.Sentinel("invoice_not_draft", ierr.ErrInvariantViolation)
	ErrInvoicePaid           = ierr.Sentinel("invoice_already_paid", ierr.ErrInvariantViolation)
	ErrInvoiceHasPayments    = ierr.Sentinel("invoice_has_payments", ierr.ErrInvariantViolation)
	ErrInvoiceClosed         = ierr.Sentinel("invoice_closed", ierr.ErrInvariantViolation)
	ErrInvoiceNotIssued      = ierr.Sentinel("invoice_not_issued", ierr.ErrInvariantViolation)
)
