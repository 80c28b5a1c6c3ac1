// Package validation checks individual general info values.
package validation

import (
	"regexp"
	"strings"

	"github.com/intakedesk/apiserver/types"
)

var (
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	einPattern    = regexp.MustCompile(`^\d{2}-?\d{7}$`)
	nonDigit      = regexp.MustCompile(`\D`)
)

const (
	minNameLength    = 2
	minAddressLength = 10
	phoneDigits      = 10
	einDigits        = 9
)

// Result is the outcome of validating one field. Reason is empty when Valid.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func ok() Result { return Result{Valid: true} }

func fail(reason string) Result { return Result{Reason: reason} }

// ValidateField checks raw against the rule for field. The profile type
// does not change any rule today but is part of the contract so callers
// always pass it.
func ValidateField(field, raw string, profileType types.ProfileType) Result {
	switch field {
	case types.FieldName:
		return validateName(raw, "Name")
	case types.FieldBusinessName:
		return validateName(raw, "Business Name")
	case types.FieldAddress:
		return validateAddress(raw)
	case types.FieldPhone:
		return validatePhone(raw)
	case types.FieldEmail:
		return validateEmail(raw)
	case types.FieldEIN:
		return validateEIN(raw)
	default:
		return validateRequired(raw, field)
	}
}

// ValidateAll runs ValidateField over every field and returns the failures
// keyed by field id.
func ValidateAll(fields map[string]string, profileType types.ProfileType) map[string]string {
	failures := make(map[string]string)
	for field, value := range fields {
		if res := ValidateField(field, value, profileType); !res.Valid {
			failures[field] = res.Reason
		}
	}
	return failures
}

// Digits strips every non-digit character from s.
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func validateRequired(raw, label string) Result {
	if strings.TrimSpace(raw) == "" {
		return fail(label + " is required")
	}
	return ok()
}

func validateName(raw, label string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail(label + " is required")
	}
	if len([]rune(trimmed)) < minNameLength {
		return fail(label + " must be at least 2 characters")
	}
	if !letterPattern.MatchString(trimmed) {
		return fail(label + " must contain letters")
	}
	return ok()
}

func validateAddress(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("Address is required")
	}
	if len([]rune(trimmed)) < minAddressLength {
		return fail("Please enter a complete address (minimum 10 characters)")
	}
	return ok()
}

func validatePhone(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("Phone number is required")
	}
	if len(Digits(trimmed)) != phoneDigits {
		return fail("must be a valid 10-digit phone number")
	}
	return ok()
}

func validateEmail(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("Email is required")
	}
	if !emailPattern.MatchString(trimmed) {
		return fail("Please enter a valid email address")
	}
	return ok()
}

func validateEIN(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("EIN is required")
	}
	if len(Digits(trimmed)) != einDigits {
		return fail("EIN must be 9 digits (format: XX-XXXXXXX)")
	}
	if !einPattern.MatchString(trimmed) {
		return fail("Please enter EIN in format: XX-XXXXXXX")
	}
	return ok()
}
