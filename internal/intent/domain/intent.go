package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the operation an intent asks the backend to perform. The value doubles as the API path segment.
type Kind string

const (
	KindPayee      Kind = "payee"
	KindPayment    Kind = "payment"
	KindForexOrder Kind = "fx-order"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPayee, KindPayment, KindForexOrder:
		return true
	}
	return false
}

// PayeeType distinguishes individual from business beneficiaries.
type PayeeType string

const (
	PayeeIndividual PayeeType = "individual"
	PayeeBusiness   PayeeType = "business"
)

// Address is a beneficiary postal address. Required for non-GBP payees.
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	PostCode string `json:"postCode,omitempty"`
	Country  string `json:"country"`
	State    string `json:"state,omitempty"`
}

// PayeeDetails describes a beneficiary. GBP payees route by account number and sort code; other
// currencies route by wallet or by IBAN plus SWIFT.
type PayeeDetails struct {
	HolderName    string    `json:"holderName"`
	Type          PayeeType `json:"payeeType"`
	Currency      string    `json:"currency"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	SortCode      string    `json:"sortCode,omitempty"`
	IBAN          string    `json:"iban,omitempty"`
	SwiftCode     string    `json:"swiftCode,omitempty"`
	Wallet        string    `json:"wallet,omitempty"`
	Address       *Address  `json:"address,omitempty"`
	Nickname      string    `json:"nickname,omitempty"`
}

// Frequency of a standing order.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a supported standing order frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Recurrence turns a payment into a standing order. At most one of EndDate and Count is set.
type Recurrence struct {
	Frequency Frequency  `json:"frequency"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Count     int        `json:"count,omitempty"`
}

// PaymentOrder is a one-off payment or, with Recurrence, a standing order.
type PaymentOrder struct {
	SourceAccount string          `json:"sourceAccount"`
	PayeeID       string          `json:"payeeId"`
	Beneficiary   *PayeeDetails   `json:"beneficiary,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PurposeCode   string          `json:"purposeCode"`
	Reference     string          `json:"reference,omitempty"`
	Recurrence    *Recurrence     `json:"recurrence,omitempty"`
}

// ForexOrder exchanges SourceAmount of SourceCurrency into TargetCurrency between two own accounts.
type ForexOrder struct {
	SourceAccount  string          `json:"sourceAccount"`
	TargetAccount  string          `json:"targetAccount"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
}

// Intent is a validated, not yet executed request. Exactly one payload matching Kind is set.
// An intent is never mutated after it is built; a retry builds a new one with a new ID.
type Intent struct {
	ID         string
	CustomerID string
	Kind       Kind
	Payee      *PayeeDetails
	Payment    *PaymentOrder
	Forex      *ForexOrder
	CreatedAt  time.Time
}

// Beneficiary returns the payee details subject to name matching, or nil when the kind has none.
func (i Intent) Beneficiary() *PayeeDetails {
	switch i.Kind {
	case KindPayee:
		return i.Payee
	case KindPayment:
		if i.Payment != nil {
			return i.Payment.Beneficiary
		}
	}
	return nil
}

// Amount returns the amount and currency moved by the intent. ok is false for payee intents.
func (i Intent) Amount() (amount decimal.Decimal, currency string, ok bool) {
	switch {
	case i.Kind == KindPayment && i.Payment != nil:
		return i.Payment.Amount, i.Payment.Currency, true
	case i.Kind == KindForexOrder && i.Forex != nil:
		return i.Forex.SourceAmount, i.Forex.SourceCurrency, true
	}
	return decimal.Zero, "", false
}

// Clone returns a deep copy so the holder cannot observe later changes to the original.
func (i Intent) Clone() Intent {
	out := i
	if i.Payee != nil {
		p := i.Payee.clone()
		out.Payee = &p
	}
	if i.Payment != nil {
		p := *i.Payment
		if i.Payment.Beneficiary != nil {
			b := i.Payment.Beneficiary.clone()
			p.Beneficiary = &b
		}
		if i.Payment.Recurrence != nil {
			r := *i.Payment.Recurrence
			if r.EndDate != nil {
				e := *r.EndDate
				r.EndDate = &e
			}
			p.Recurrence = &r
		}
		out.Payment = &p
	}
	if i.Forex != nil {
		f := *i.Forex
		out.Forex = &f
	}
	return out
}

func (p PayeeDetails) clone() PayeeDetails {
	out := p
	if p.Address != nil {
		a := *p.Address
		out.Address = &a
	}
	return out
}
