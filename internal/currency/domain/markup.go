package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type MarkupType string

const (
	MarkupTypeNone       MarkupType = "NONE"
	MarkupTypePercentage MarkupType = "PERCENTAGE"
)

var hundred = decimal.NewFromInt(100)

// ParseMarkupType normalizes a stored markup type; empty means none.
func ParseMarkupType(raw string) (MarkupType, error) {
	switch MarkupType(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", MarkupTypeNone:
		return MarkupTypeNone, nil
	case MarkupTypePercentage:
		return MarkupTypePercentage, nil
	default:
		return "", ErrInvalidMarkup
	}
}

// ApplyMarkup derives the rate charged to a tenant from the market rate.
// A percentage markup of v yields baseRate * (1 + v/100).
func ApplyMarkup(baseRate decimal.Decimal, markupType MarkupType, markupValue decimal.Decimal) (decimal.Decimal, error) {
	if !baseRate.IsPositive() {
		return decimal.Zero, ErrInvalidRate
	}
	switch markupType {
	case MarkupTypeNone, "":
		return baseRate, nil
	case MarkupTypePercentage:
		if markupValue.IsNegative() {
			return decimal.Zero, ErrInvalidMarkup
		}
		return baseRate.Mul(decimal.NewFromInt(1).Add(markupValue.Div(hundred))), nil
	default:
		return decimal.Zero, ErrInvalidMarkup
	}
}
