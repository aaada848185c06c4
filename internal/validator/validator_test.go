package validator

import (
	"testing"

	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Currency string `validate:"required,len=3"`
	Quantity int    `validate:"gte=1"`
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(sampleRequest{Currency: "USD", Quantity: 1}))

	err := ValidateRequest(sampleRequest{Currency: "US"})
	require.Error(t, err)
	require.True(t, ierr.IsValidation(err))
}
