package resource

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
)

// Kind names a resource type that can be looked up by id.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindInvoice      Kind = "invoice"
	KindPayment      Kind = "payment"
)

// ParseKind accepts singular or plural names in any case.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s"))
	switch kind {
	case KindSubscription, KindInvoice, KindPayment:
		return kind, nil
	default:
		return "", ErrUnknownKind
	}
}

// Resource is the closed set of loadable records. Only the types in this
// package implement it.
type Resource interface {
	Kind() Kind
	ResourceID() snowflake.ID
	OrgID() snowflake.ID
	isResource()
}

type SubscriptionResource struct {
	Subscription *subscriptiondomain.Subscription `json:"subscription"`
}

func (SubscriptionResource) Kind() Kind                 { return KindSubscription }
func (r SubscriptionResource) ResourceID() snowflake.ID { return r.Subscription.ID }
func (r SubscriptionResource) OrgID() snowflake.ID      { return r.Subscription.OrgID }
func (SubscriptionResource) isResource()                {}

type InvoiceResource struct {
	Invoice *invoicedomain.Invoice `json:"invoice"`
}

func (InvoiceResource) Kind() Kind                 { return KindInvoice }
func (r InvoiceResource) ResourceID() snowflake.ID { return r.Invoice.ID }
func (r InvoiceResource) OrgID() snowflake.ID      { return r.Invoice.OrgID }
func (InvoiceResource) isResource()                {}

type PaymentResource struct {
	Payment *paymentdomain.Payment `json:"payment"`
}

func (PaymentResource) Kind() Kind                 { return KindPayment }
func (r PaymentResource) ResourceID() snowflake.ID { return r.Payment.ID }
func (r PaymentResource) OrgID() snowflake.ID      { return r.Payment.OrgID }
func (PaymentResource) isResource()                {}
