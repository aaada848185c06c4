package plan

import (
	"testing"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestLookupStandardMonthlyFee(t *testing.T) {
	catalog := NewDefaultCatalog()

	def, err := catalog.Lookup("STD_M")
	require.NoError(t, err)

	fee, err := def.Fee(1, 2)
	require.NoError(t, err)
	require.True(t, fee.Equal(decimal.NewFromInt(75)), "fee = %s", fee)
	require.Equal(t, 1, def.IncludedBranches)
	require.Equal(t, 4, def.IncludedUsers)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	def, err := NewDefaultCatalog().Lookup(" std_y ")
	require.NoError(t, err)
	require.Equal(t, "STD_Y", def.ID)
}

func TestLookupUnknownPlan(t *testing.T) {
	_, err := NewDefaultCatalog().Lookup("GOLD")
	require.ErrorIs(t, err, ErrPlanNotFound)
	require.True(t, ierr.IsNotFound(err))
}

func TestFeeRejectsAddOnsWhenNotAllowed(t *testing.T) {
	def, err := NewDefaultCatalog().Lookup("TRIAL_M")
	require.NoError(t, err)
	require.True(t, def.HasTrial())

	_, err = def.Fee(1, 0)
	require.True(t, ierr.IsValidation(err))

	fee, err := def.Fee(0, 0)
	require.NoError(t, err)
	require.True(t, fee.Equal(def.BaseFee))
}

func TestFeeRejectsNegativeQuantities(t *testing.T) {
	def, _ := NewDefaultCatalog().Lookup("STD_M")
	_, err := def.Fee(-1, 0)
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestListIsSorted(t *testing.T) {
	plans := NewDefaultCatalog().List()
	require.Len(t, plans, 5)
	for i := 1; i < len(plans); i++ {
		require.Less(t, plans[i-1].ID, plans[i].ID)
	}
}
