// Package plan holds the static pricing catalog. Plans change only through a
// deploy, which keeps values already snapshotted onto subscriptions stable.
package plan

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"go.uber.org/fx"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

var (
	ErrPlanNotFound      = ierr.Sentinel("plan_not_found", ierr.ErrNotFound)
	ErrAddOnsNotAllowed  = ierr.Sentinel("plan_addons_not_allowed", ierr.ErrValidation)
	ErrNegativeQuantity  = ierr.Sentinel("plan_negative_quantity", ierr.ErrValidation)
	ErrTrialNotAvailable = ierr.Sentinel("plan_trial_not_available", ierr.ErrValidation)
)

// Definition is an immutable pricing rule.
type Definition struct {
	ID               string
	Name             string
	BillingCycle     BillingCycle
	Currency         string
	BaseFee          decimal.Decimal
	BranchPrice      decimal.Decimal
	IncludedBranches int
	UserPrice        decimal.Decimal
	IncludedUsers    int
	DurationDays     int
	TrialDays        int
	AllowAddOns      bool
}

// HasTrial reports whether the plan offers a trial period.
func (d Definition) HasTrial() bool {
	return d.TrialDays > 0
}

// Fee prices the plan with the requested add-on quantities.
func (d Definition) Fee(extraBranches, extraUsers int) (decimal.Decimal, error) {
	if extraBranches < 0 || extraUsers < 0 {
		return decimal.Zero, ErrNegativeQuantity
	}
	if !d.AllowAddOns && (extraBranches > 0 || extraUsers > 0) {
		return decimal.Zero, ErrAddOnsNotAllowed
	}
	fee := d.BaseFee.
		Add(d.BranchPrice.Mul(decimal.NewFromInt(int64(extraBranches)))).
		Add(d.UserPrice.Mul(decimal.NewFromInt(int64(extraUsers))))
	return fee, nil
}

// Catalog looks up plan definitions by id.
type Catalog interface {
	Lookup(id string) (Definition, error)
	List() []Definition
}

type catalog struct {
	plans map[string]Definition
}

// NewCatalog builds a catalog from definitions. Later duplicates replace earlier ones.
func NewCatalog(defs ...Definition) Catalog {
	plans := make(map[string]Definition, len(defs))
	for _, def := range defs {
		plans[normalizeID(def.ID)] = def
	}
	return &catalog{plans: plans}
}

// NewDefaultCatalog returns the built-in plans.
func NewDefaultCatalog() Catalog {
	return NewCatalog(DefaultPlans()...)
}

func (c *catalog) Lookup(id string) (Definition, error) {
	def, ok := c.plans[normalizeID(id)]
	if !ok {
		return Definition{}, ErrPlanNotFound
	}
	return def, nil
}

func (c *catalog) List() []Definition {
	out := make([]Definition, 0, len(c.plans))
	for _, def := range c.plans {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func DefaultPlans() []Definition {
	return []Definition{
		{
			ID:               "STD_M",
			Name:             "Standard Monthly",
			BillingCycle:     BillingCycleMonthly,
			Currency:         "USD",
			BaseFee:          decimal.NewFromInt(35),
			BranchPrice:      decimal.NewFromInt(20),
			IncludedBranches: 1,
			UserPrice:        decimal.NewFromInt(10),
			IncludedUsers:    4,
			DurationDays:     30,
			AllowAddOns:      true,
		},
		{
			ID:               "STD_Y",
			Name:             "Standard Yearly",
			BillingCycle:     BillingCycleYearly,
			Currency:         "USD",
			BaseFee:          decimal.NewFromInt(350),
			BranchPrice:      decimal.NewFromInt(200),
			IncludedBranches: 1,
			UserPrice:        decimal.NewFromInt(100),
			IncludedUsers:    4,
			DurationDays:     365,
			AllowAddOns:      true,
		},
		{
			ID:               "PRO_M",
			Name:             "Professional Monthly",
			BillingCycle:     BillingCycleMonthly,
			Currency:         "USD",
			BaseFee:          decimal.NewFromInt(90),
			BranchPrice:      decimal.NewFromInt(15),
			IncludedBranches: 3,
			UserPrice:        decimal.NewFromInt(8),
			IncludedUsers:    15,
			DurationDays:     30,
			AllowAddOns:      true,
		},
		{
			ID:               "PRO_Y",
			Name:             "Professional Yearly",
			BillingCycle:     BillingCycleYearly,
			Currency:         "USD",
			BaseFee:          decimal.NewFromInt(900),
			BranchPrice:      decimal.NewFromInt(150),
			IncludedBranches: 3,
			UserPrice:        decimal.NewFromInt(80),
			IncludedUsers:    15,
			DurationDays:     365,
			AllowAddOns:      true,
		},
		{
			ID:               "TRIAL_M",
			Name:             "Standard Monthly with Trial",
			BillingCycle:     BillingCycleMonthly,
			Currency:         "USD",
			BaseFee:          decimal.NewFromInt(35),
			BranchPrice:      decimal.NewFromInt(20),
			IncludedBranches: 1,
			UserPrice:        decimal.NewFromInt(10),
			IncludedUsers:    2,
			DurationDays:     30,
			TrialDays:        14,
			AllowAddOns:      false,
		},
	}
}

var Module = fx.Module("plan.catalog",
	fx.Provide(NewDefaultCatalog),
)
