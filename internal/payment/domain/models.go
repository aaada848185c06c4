// Package domain contains persistence models for clinic payments.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// ParsePaymentMethod normalizes a method name.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodOther:
		return method, nil
	default:
		return "", ErrInvalidMethod
	}
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusVoided    PaymentStatus = "VOIDED"
)

type ChequeStatus string

const (
	ChequeStatusPending   ChequeStatus = "PENDING"
	ChequeStatusCleared   ChequeStatus = "CLEARED"
	ChequeStatusBounced   ChequeStatus = "BOUNCED"
	ChequeStatusCancelled ChequeStatus = "CANCELLED"
)

// ParseChequeStatus normalizes a cheque status name.
func ParseChequeStatus(raw string) (ChequeStatus, error) {
	status := ChequeStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case ChequeStatusPending, ChequeStatusCleared, ChequeStatusBounced, ChequeStatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidChequeStatus
	}
}

// Payment is money received from a clinic. Exchange rates and the functional
// amount are frozen when the payment is recorded.
type Payment struct {
	ID                         snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID                      snowflake.ID    `gorm:"not null;index" json:"org_id"`
	Method                     PaymentMethod   `gorm:"type:varchar(16);not null" json:"method"`
	Reference                  *string         `gorm:"type:varchar(128)" json:"reference,omitempty"`
	Amount                     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency                   string          `gorm:"type:varchar(3);not null" json:"currency"`
	FunctionalCurrency         string          `gorm:"type:varchar(3);not null" json:"functional_currency"`
	BaseExchangeRate           decimal.Decimal `gorm:"type:numeric(30,16);not null" json:"base_exchange_rate"`
	FinalExchangeRate          decimal.Decimal `gorm:"type:numeric(30,16);not null" json:"final_exchange_rate"`
	AmountInFunctionalCurrency decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount_in_functional_currency"`
	RefundedAmount             decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"refunded_amount"`
	Status                     PaymentStatus   `gorm:"type:varchar(16);not null;index" json:"status"`
	PaidAt                     time.Time       `gorm:"not null" json:"paid_at"`
	Notes                      *string         `gorm:"type:text" json:"notes,omitempty"`
	RefundReason               *string         `gorm:"type:text" json:"refund_reason,omitempty"`
	RefundedAt                 *time.Time      `json:"refunded_at,omitempty"`
	VoidReason                 *string         `gorm:"type:text" json:"void_reason,omitempty"`
	VoidedAt                   *time.Time      `json:"voided_at,omitempty"`
	CreatedBy                  *string         `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Version                    int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt                  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt                  time.Time       `gorm:"not null" json:"updated_at"`

	ChequeDetail *ChequeDetail       `gorm:"foreignKey:PaymentID" json:"cheque_detail,omitempty"`
	Allocations  []PaymentAllocation `gorm:"foreignKey:PaymentID" json:"allocations,omitempty"`
}

func (Payment) TableName() string { return "payments" }

// AllocatedAmount sums the loaded allocations in the payment currency.
func (p Payment) AllocatedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, allocation := range p.Allocations {
		total = total.Add(allocation.Amount)
	}
	return total
}

// UnallocatedAmount is Amount minus refunds minus allocations. It is only
// meaningful when Allocations is loaded.
func (p Payment) UnallocatedAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount).Sub(p.AllocatedAmount())
}

// MarshalJSON adds the derived allocated and unallocated amounts.
func (p Payment) MarshalJSON() ([]byte, error) {
	type payment Payment
	return json.Marshal(struct {
		payment
		AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
		UnallocatedAmount decimal.Decimal `json:"unallocated_amount"`
	}{payment(p), p.AllocatedAmount(), p.UnallocatedAmount()})
}

// Allocation returns the loaded allocation for invoiceID.
func (p Payment) Allocation(invoiceID snowflake.ID) (PaymentAllocation, bool) {
	for _, allocation := range p.Allocations {
		if allocation.InvoiceID == invoiceID {
			return allocation, true
		}
	}
	return PaymentAllocation{}, false
}

// Allocatable reports whether the payment's funds may be applied to invoices.
func (p Payment) Allocatable() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusCompleted
}

// ChequeDetail tracks clearing of a cheque payment.
type ChequeDetail struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;index" json:"org_id"`
	PaymentID       snowflake.ID `gorm:"not null;uniqueIndex" json:"payment_id"`
	BankName        string       `gorm:"type:varchar(128);not null" json:"bank_name"`
	ChequeNumber    string       `gorm:"type:varchar(64);not null" json:"cheque_number"`
	IssueDate       time.Time    `gorm:"not null" json:"issue_date"`
	DueDate         *time.Time   `json:"due_date,omitempty"`
	Status          ChequeStatus `gorm:"type:varchar(16);not null" json:"status"`
	StatusChangedAt *time.Time   `json:"status_changed_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (ChequeDetail) TableName() string { return "payment_cheque_details" }

// PaymentAllocation applies part of a payment to one invoice. Amount is in
// the payment currency and InvoiceAmount in the invoice currency.
type PaymentAllocation struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index" json:"org_id"`
	PaymentID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_payment_allocations_pair" json:"payment_id"`
	InvoiceID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_payment_allocations_pair;index" json:"invoice_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	InvoiceAmount decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"invoice_amount"`
	// ExchangeRate is the payment-to-invoice rate of the latest allocation.
	ExchangeRate decimal.Decimal `gorm:"type:numeric(30,16);not null" json:"exchange_rate"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (PaymentAllocation) TableName() string { return "payment_allocations" }

type PaymentCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID  snowflake.ID
	Status *PaymentStatus
	Method *PaymentMethod
	Cursor *PaymentCursor
	Limit  int
}
