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

type ChequeInput struct {
	BankName     string     `json:"bank_name" validate:"required,max=128"`
	ChequeNumber string     `json:"cheque_number" validate:"required,max=64"`
	IssueDate    time.Time  `json:"issue_date" validate:"required"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

type AllocationInput struct {
	InvoiceID snowflake.ID    `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type CreatePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,len=3"`
	Method    string          `json:"method" validate:"required"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
	Notes     string          `json:"notes,omitempty"`
	// PaidAt defaults to now.
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	Cheque      *ChequeInput      `json:"cheque,omitempty"`
	Allocations []AllocationInput `json:"allocations,omitempty" validate:"dive"`
}

type ListPaymentRequest struct {
	pagination.Pagination
	Status *PaymentStatus
	Method *PaymentMethod
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	AllocateToInvoice(ctx context.Context, paymentID, invoiceID snowflake.ID, amount decimal.Decimal) (*Payment, error)
	// DeallocateFromInvoice removes amount from the allocation; nil removes
	// the whole allocation.
	DeallocateFromInvoice(ctx context.Context, paymentID, invoiceID snowflake.ID, amount *decimal.Decimal) (*Payment, error)
	CancelPayment(ctx context.Context, id snowflake.ID, reason string) (*Payment, error)
	// RefundPayment refunds amount, defaulting to the unallocated funds.
	// Allocated funds must be deallocated first.
	RefundPayment(ctx context.Context, id snowflake.ID, reason string, amount *decimal.Decimal) (*Payment, error)
	UpdateChequeStatus(ctx context.Context, id snowflake.ID, status ChequeStatus) (*Payment, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
	ListAllocationsByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]PaymentAllocation, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	InsertCheque(ctx context.Context, db *gorm.DB, cheque *ChequeDetail) error
	UpdateCheque(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	// UpdateGuarded applies updates only when the stored version matches and
	// bumps the version. It reports whether a row changed.
	UpdateGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, version int64, updates map[string]any) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	InsertAllocation(ctx context.Context, db *gorm.DB, allocation *PaymentAllocation) error
	UpdateAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error
	DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListAllocationsByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]PaymentAllocation, error)
}

var (
	ErrInvalidOrganization  = ierr.Sentinel("invalid_organization", ierr.ErrValidation)
	ErrInvalidPaymentID     = ierr.Sentinel("invalid_payment_id", ierr.ErrValidation)
	ErrInvalidAmount        = ierr.Sentinel("invalid_payment_amount", ierr.ErrValidation)
	ErrInvalidCurrency      = ierr.Sentinel("invalid_payment_currency", ierr.ErrValidation)
	ErrInvalidMethod        = ierr.Sentinel("invalid_payment_method", ierr.ErrValidation)
	ErrInvalidChequeStatus  = ierr.Sentinel("invalid_cheque_status", ierr.ErrValidation)
	ErrChequeMethodMismatch = ierr.Sentinel("cheque_detail_requires_cheque_method", ierr.ErrValidation)
	ErrChequeDetailRequired = ierr.Sentinel("cheque_detail_required", ierr.ErrValidation)
	ErrDuplicateAllocation  = ierr.Sentinel("duplicate_allocation_invoice", ierr.ErrValidation)
	ErrInvalidPageToken     = ierr.Sentinel("invalid_page_token", ierr.ErrValidation)

	ErrPaymentNotFound    = ierr.Sentinel("payment_not_found", ierr.ErrNotFound)
	ErrAllocationNotFound = ierr.Sentinel("payment_allocation_not_found", ierr.ErrNotFound)
	ErrChequeNotFound     = ierr.Sentinel("cheque_detail_not_found", ierr.ErrNotFound)

	ErrConcurrentUpdate = ierr.Sentinel("payment_concurrent_update", ierr.ErrConflict)

	ErrInsufficientFunds        = ierr.Sentinel("payment_insufficient_unallocated_funds", ierr.ErrInvariantViolation)
	ErrExceedsInvoiceBalance    = ierr.Sentinel("allocation_exceeds_invoice_balance", ierr.ErrInvariantViolation)
	ErrExceedsAllocation        = ierr.Sentinel("deallocation_exceeds_allocation", ierr.ErrInvariantViolation)
	ErrPaymentNotAllocatable    = ierr.Sentinel("payment_not_allocatable", ierr.ErrInvariantViolation)
	ErrInvoiceNotPayable        = ierr.Sentinel("invoice_not_payable", ierr.ErrInvariantViolation)
	ErrPaymentHasAllocations    = ierr.Sentinel("payment_has_allocations", ierr.ErrInvariantViolation)
	ErrPaymentNotCancellable    = ierr.Sentinel("payment_not_cancellable", ierr.ErrInvariantViolation)
	ErrPaymentNotRefundable     = ierr.Sentinel("payment_not_refundable", ierr.ErrInvariantViolation)
	ErrRefundExceedsUnallocated = ierr.Sentinel("refund_exceeds_unallocated_amount", ierr.ErrInvariantViolation)
	ErrInvalidChequeTransition  = ierr.Sentinel("invalid_cheque_transition", ierr.ErrInvariantViolation)
)
