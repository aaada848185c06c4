// Package errors defines the error taxonomy shared by every billing domain.
//
// Domain packages declare their own snake_case sentinels and mark them with
// exactly one category below, so callers can branch on either the precise
// sentinel or the category.
package errors

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

const reportableDetailsPrefix = "__json__:"

var (
	ErrValidation         = errors.New("validation_error")
	ErrNotFound           = errors.New("not_found")
	ErrConflict           = errors.New("conflict")
	ErrInvariantViolation = errors.New("invariant_violation")
	ErrRateNotFound       = errors.New("rate_not_found")

	statusCodeMap = []struct {
		err    error
		status int
	}{
		{ErrValidation, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrInvariantViolation, http.StatusUnprocessableEntity},
		{ErrRateNotFound, http.StatusUnprocessableEntity},
	}
)

// Sentinel declares a domain sentinel error marked with a category.
func Sentinel(code string, category error) error {
	return errors.Mark(errors.New(code), category)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

func IsRateNotFound(err error) bool {
	return errors.Is(err, ErrRateNotFound)
}

// Category returns the taxonomy code for err, or "internal" when unmarked.
func Category(err error) string {
	for _, entry := range statusCodeMap {
		if errors.Is(err, entry.err) {
			return entry.err.Error()
		}
	}
	return "internal"
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	for _, entry := range statusCodeMap {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

// Hints returns the user facing hints attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}

// ReportableDetails merges the structured details attached through
// WithReportableDetails. It returns nil when there are none.
func ReportableDetails(err error) map[string]any {
	var merged map[string]any
	for _, payload := range errors.GetAllSafeDetails(err) {
		for _, detail := range payload.SafeDetails {
			raw, ok := strings.CutPrefix(detail, reportableDetailsPrefix)
			if !ok {
				continue
			}
			var details map[string]any
			if json.Unmarshal([]byte(raw), &details) != nil {
				continue
			}
			if merged == nil {
				merged = make(map[string]any, len(details))
			}
			for key, value := range details {
				merged[key] = value
			}
		}
	}
	return merged
}
