// Package fraud holds the fraud alerts raised by the backend when an operation is initiated.
package fraud

import "sort"

// Well-known alert codes.
const (
	AlertVelocity        = "VELOCITY"
	AlertHighRiskCountry = "HIGH_RISK_COUNTRY"
	AlertNewPayee        = "NEW_PAYEE"
)

// AlertSet maps alert code to a human-readable message.
type AlertSet map[string]string

// Empty reports whether there is nothing to acknowledge.
func (s AlertSet) Empty() bool { return len(s) == 0 }

// Codes returns the alert codes in sorted order.
func (s AlertSet) Codes() []string {
	out := make([]string, 0, len(s))
	for code := range s {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Acknowledge returns every code mapped to true. Acknowledgement is all-or-nothing.
func (s AlertSet) Acknowledge() map[string]bool {
	if len(s) == 0 {
		return nil
	}
	out := make(map[string]bool, len(s))
	for code := range s {
		out[code] = true
	}
	return out
}

// Clone returns an independent copy. A nil set stays nil.
func (s AlertSet) Clone() AlertSet {
	if s == nil {
		return nil
	}
	out := make(AlertSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
