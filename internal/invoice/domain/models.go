// Package domain contains persistence models for invoicing.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept on computed amounts.
const AmountScale int32 = 4

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
	InvoiceStatusUncollectible InvoiceStatus = "UNCOLLECTIBLE"
)

// InvoiceType records the billing event that produced an invoice.
type InvoiceType string

const (
	InvoiceTypeNew     InvoiceType = "NEW"
	InvoiceTypeRenewal InvoiceType = "RENEWAL"
	InvoiceTypeManual  InvoiceType = "MANUAL"
)

// Invoice is an immutable billing snapshot. Only the status, paid amount and
// closing fields change after issue.
type Invoice struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_org_number,priority:1;uniqueIndex:ux_invoices_org_idempotency,priority:1" json:"org_id"`
	SubscriptionID  *snowflake.ID   `gorm:"index" json:"subscription_id,omitempty"`
	InvoiceNumber   string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_org_number,priority:2" json:"invoice_number"`
	IdempotencyKey  *string         `gorm:"type:varchar(255);uniqueIndex:ux_invoices_org_idempotency,priority:2" json:"idempotency_key,omitempty"`
	Type            InvoiceType     `gorm:"type:varchar(16);not null" json:"type"`
	Status          InvoiceStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	BilledToName    string          `gorm:"type:text;not null" json:"billed_to_name"`
	BilledToAddress string          `gorm:"type:text;not null;default:''" json:"billed_to_address"`
	BilledToTaxID   string          `gorm:"type:text;not null;default:''" json:"billed_to_tax_id"`
	IssueDate       time.Time       `gorm:"not null" json:"issue_date"`
	DueDate         time.Time       `gorm:"not null;index" json:"due_date"`
	SubTotal        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"sub_total"`
	TaxRate         decimal.Decimal `gorm:"type:numeric(9,6);not null" json:"tax_rate"`
	TaxAmount       decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"tax_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"paid_amount"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	VoidReason      *string         `gorm:"type:text" json:"void_reason,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	WriteOffReason  *string         `gorm:"type:text" json:"write_off_reason,omitempty"`
	WrittenOffAt    *time.Time      `json:"written_off_at,omitempty"`
	Version         int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// BalanceDue is the amount still owed.
func (i Invoice) BalanceDue() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// MarshalJSON adds the derived balance_due to the stored columns.
func (i Invoice) MarshalJSON() ([]byte, error) {
	type invoice Invoice
	return json.Marshal(struct {
		invoice
		BalanceDue decimal.Decimal `json:"balance_due"`
	}{invoice(i), i.BalanceDue()})
}

// AcceptsPayment reports whether allocations may be applied to the invoice.
func (i Invoice) AcceptsPayment() bool {
	switch i.Status {
	case InvoiceStatusIssued, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	default:
		return false
	}
}

// IsOutstanding reports whether the invoice counts toward receivables.
func (i Invoice) IsOutstanding() bool {
	switch i.Status {
	case InvoiceStatusIssued, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}

// PaymentStatus derives the status implied by the paid amount and due date.
// Closed statuses are returned unchanged.
func PaymentStatus(inv Invoice, now time.Time) InvoiceStatus {
	if !inv.AcceptsPayment() {
		return inv.Status
	}
	switch {
	case inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount):
		return InvoiceStatusPaid
	case now.After(inv.DueDate):
		return InvoiceStatusOverdue
	case inv.PaidAmount.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusIssued
	}
}

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index" json:"org_id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"line_total"`
	PeriodStart *time.Time      `json:"period_start,omitempty"`
	PeriodEnd   *time.Time      `json:"period_end,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

type InvoiceCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID          snowflake.ID
	Status         *InvoiceStatus
	Type           *InvoiceType
	SubscriptionID *snowflake.ID
	Cursor         *InvoiceCursor
	Limit          int
}
