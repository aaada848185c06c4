package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRequest validates req struct tags and returns a ValidationError
// carrying one detail per failed field.
func ValidateRequest(req any) error {
	if err := GetValidator().Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, fieldErr := range validateErrs {
				details[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
