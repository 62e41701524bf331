// Package cop models Confirmation of Payee verdicts as a closed set of outcome kinds.
package cop

import (
	"fmt"
	"strings"
)

// Kind is the variant of a COP outcome.
type Kind int

const (
	// NotApplicable means the intent carries no payee to match (or the server ran no check).
	NotApplicable Kind = iota
	// Match is an exact name match.
	Match
	// Internal means the beneficiary is one of the customer's own accounts.
	Internal
	// CloseMatch means the name nearly matched; the server may suggest the registered name.
	CloseMatch
	// NoMatch means the name did not match.
	NoMatch
	// AccountNotFound is the terminal AC01 verdict; it can never be overridden.
	AccountNotFound
	// Mismatch is any other recognised reason code.
	Mismatch
	// Unknown is a code this client does not recognise.
	Unknown
)

var kindNames = [...]string{"not_applicable", "match", "internal", "close_match", "no_match", "account_not_found", "mismatch", "unknown"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason codes returned by the COP scheme.
const (
	CodeAccountNotFound   = "AC01"
	CodeNameNoMatch       = "ANNM"
	CodeCloseMatch        = "MBAM"
	CodeBusinessNameMatch = "BANM"
	CodePersonalNameMatch = "PANM"
	CodeNotSupported      = "ACNS"
	CodeOptedOut          = "OPTO"
	CodeSwitched          = "CASS"
	CodeSecondaryRef      = "SCNS"
	CodeInvalidRequest    = "IVCR"
)

// Decision options offered to the user while the COP gate waits.
type Option string

const (
	OptionConfirm Option = "confirm"
	OptionReject  Option = "reject"
	OptionEdit    Option = "edit"
)

// Outcome is one COP verdict. Code holds the raw reason code for the Mismatch and Unknown kinds, and
// the scheme code where the server sent one. SuggestedName is set for close matches.
type Outcome struct {
	Kind          Kind   `json:"kind"`
	Code          string `json:"code,omitempty"`
	SuggestedName string `json:"suggestedName,omitempty"`
}

// Parse maps the server's raw fields to an Outcome. nameMatch is the server's match flag
// ("match", "internal", "close", "no-match" or empty); responseCode is the scheme reason code.
// A code takes precedence over the flag, except that an explicit match or internal flag with no code wins.
func Parse(responseCode, nameMatch, suggestedName string) Outcome {
	code := strings.ToUpper(strings.TrimSpace(responseCode))
	flag := strings.ToLower(strings.TrimSpace(nameMatch))

	switch code {
	case "":
	case CodeAccountNotFound:
		return Outcome{Kind: AccountNotFound, Code: code}
	case CodeNameNoMatch:
		return Outcome{Kind: NoMatch, Code: code}
	case CodeCloseMatch, CodeBusinessNameMatch, CodePersonalNameMatch:
		return Outcome{Kind: CloseMatch, Code: code, SuggestedName: strings.TrimSpace(suggestedName)}
	case CodeNotSupported, CodeOptedOut, CodeSwitched, CodeSecondaryRef, CodeInvalidRequest:
		return Outcome{Kind: Mismatch, Code: code}
	default:
		return Outcome{Kind: Unknown, Code: code}
	}

	switch flag {
	case "":
		return Outcome{Kind: NotApplicable}
	case "match", "matched", "true":
		return Outcome{Kind: Match}
	case "internal":
		return Outcome{Kind: Internal}
	case "close", "close-match", "close_match":
		return Outcome{Kind: CloseMatch, SuggestedName: strings.TrimSpace(suggestedName)}
	case "no-match", "no_match", "nomatch", "false":
		return Outcome{Kind: NoMatch}
	default:
		return Outcome{Kind: Unknown, Code: flag}
	}
}

// AutoConfirms reports whether the gate resolves without asking the user.
func (o Outcome) AutoConfirms() bool {
	return o.Kind == Match || o.Kind == Internal || o.Kind == NotApplicable
}

// AllowsOverride reports whether "confirm anyway" may be offered.
func (o Outcome) AllowsOverride() bool {
	return !o.AutoConfirms() && o.Kind != AccountNotFound
}

// Options lists the decisions the user may pick. Empty for auto-confirming outcomes.
func (o Outcome) Options() []Option {
	switch {
	case o.AutoConfirms():
		return nil
	case o.Kind == AccountNotFound:
		return []Option{OptionReject, OptionEdit}
	default:
		return []Option{OptionConfirm, OptionReject, OptionEdit}
	}
}

func (o Outcome) String() string {
	if o.Code != "" {
		return o.Kind.String() + "(" + o.Code + ")"
	}
	return o.Kind.String()
}
