package domain

import (
	"fmt"
	"strings"
)

// FailureCode enumerates why a form field was rejected.
type FailureCode string

const (
	CodeRequired            FailureCode = "required"
	CodeInvalidFormat       FailureCode = "invalid_format"
	CodeInvalidAmount       FailureCode = "invalid_amount"
	CodeBelowMinimum        FailureCode = "below_minimum"
	CodeInvalidWalletLength FailureCode = "invalid_wallet_length"
	CodeConflictingRouting  FailureCode = "conflicting_routing"
	CodeMissingRouting      FailureCode = "missing_routing"
	CodeIncompleteIBANSwift FailureCode = "incomplete_iban_swift"
	CodeAddressRequired     FailureCode = "address_required"
	CodeStateRequired       FailureCode = "state_required"
	CodeUnknownState        FailureCode = "unknown_state"
	CodeUnknownCountry      FailureCode = "unknown_country"
	CodeUnknownPurpose      FailureCode = "unknown_purpose"
	CodeSameCurrency        FailureCode = "same_currency"
	CodeInvalidRecurrence   FailureCode = "invalid_recurrence"
	CodePolicyDenied        FailureCode = "policy_denied"
)

// Blocking reports whether the failure must be shown as a blocking message rather than inline on a field.
func (c FailureCode) Blocking() bool {
	return c == CodeBelowMinimum || c == CodePolicyDenied
}

// Failure is one field-level validation problem. Field is the form field name; empty for form-wide failures.
type Failure struct {
	Field  string      `json:"field,omitempty"`
	Code   FailureCode `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ValidationError carries every failure found in a form. It never reaches the network layer.
type ValidationError struct {
	Failures []Failure
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Field == "" {
			parts = append(parts, string(f.Code))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Code))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Has reports whether the error contains code, optionally restricted to field when field is non-empty.
func (e *ValidationError) Has(field string, code FailureCode) bool {
	for _, f := range e.Failures {
		if f.Code == code && (field == "" || f.Field == field) {
			return true
		}
	}
	return false
}
