package service

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/plan"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
)

// invoiceRequest bills one subscription period: the plan line plus one line
// per purchased add-on.
func invoiceRequest(definition plan.Definition, sub *subscriptiondomain.Subscription, invoiceType invoicedomain.InvoiceType, key string, issuedAt time.Time) invoicedomain.GenerateInvoiceRequest {
	periodStart := sub.StartDate
	periodEnd := sub.EndDate

	items := []invoicedomain.ItemInput{{
		Description: definition.Name,
		Quantity:    1,
		UnitPrice:   definition.BaseFee,
		PeriodStart: &periodStart,
		PeriodEnd:   &periodEnd,
	}}
	items = appendAddOn(items, "Additional branch", sub.PurchasedBranches, definition.BranchPrice, &periodStart, &periodEnd)
	items = appendAddOn(items, "Additional user", sub.PurchasedUsers, definition.UserPrice, &periodStart, &periodEnd)

	subscriptionID := sub.ID
	return invoicedomain.GenerateInvoiceRequest{
		SubscriptionID: &subscriptionID,
		Type:           invoiceType,
		Currency:       sub.Currency,
		Items:          items,
		IdempotencyKey: key,
		IssueDate:      &issuedAt,
	}
}

func appendAddOn(items []invoicedomain.ItemInput, description string, quantity int, unitPrice decimal.Decimal, start, end *time.Time) []invoicedomain.ItemInput {
	if quantity <= 0 {
		return items
	}
	return append(items, invoicedomain.ItemInput{
		Description: description,
		Quantity:    int64(quantity),
		UnitPrice:   unitPrice,
		PeriodStart: start,
		PeriodEnd:   end,
	})
}

func newInvoiceKey(subscriptionID snowflake.ID) string {
	return fmt.Sprintf("subscription:%s:new", subscriptionID)
}

// renewalInvoiceKey is keyed on the renewal itself. A second renewal of the
// same period is already rejected by the unique predecessor link, and a
// cancelled renewal must not hand its void invoice to a later one.
func renewalInvoiceKey(renewalID snowflake.ID) string {
	return fmt.Sprintf("subscription:%s:renewal", renewalID)
}
