package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPaymentUnallocatedAmount(t *testing.T) {
	payment := Payment{
		Amount:         decimal.NewFromInt(100),
		RefundedAmount: decimal.NewFromInt(15),
		Allocations: []PaymentAllocation{
			{InvoiceID: 21, Amount: decimal.NewFromInt(40)},
			{InvoiceID: 22, Amount: decimal.RequireFromString("12.5")},
		},
	}

	require.True(t, decimal.RequireFromString("52.5").Equal(payment.AllocatedAmount()))
	require.True(t, decimal.RequireFromString("32.5").Equal(payment.UnallocatedAmount()))

	allocation, ok := payment.Allocation(22)
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("12.5").Equal(allocation.Amount))
	_, ok = payment.Allocation(23)
	require.False(t, ok)
}

func TestPaymentJSONIncludesAllocationTotals(t *testing.T) {
	payment := Payment{
		ID:     31,
		Method: PaymentMethodCash,
		Status: PaymentStatusCompleted,
		Amount: decimal.NewFromInt(100),
		Allocations: []PaymentAllocation{
			{InvoiceID: 21, Amount: decimal.NewFromInt(40)},
		},
	}

	raw, err := json.Marshal(&payment)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, "40", body["allocated_amount"])
	require.Equal(t, "60", body["unallocated_amount"])
	require.Equal(t, "CASH", body["method"])
	require.Len(t, body["allocations"], 1)
}
