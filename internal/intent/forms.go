package intent

import "strings"

// PayeeForm is the raw user input for a payee. All fields are strings as typed by the user.
type PayeeForm struct {
	HolderName    string `json:"holderName" validate:"required,max=140"`
	PayeeType     string `json:"payeeType" validate:"omitempty,oneof=individual business"`
	Currency      string `json:"currency" validate:"required,len=3,alpha"`
	AccountNumber string `json:"accountNumber"`
	SortCode      string `json:"sortCode"`
	IBAN          string `json:"iban"`
	SwiftCode     string `json:"swiftCode"`
	Wallet        string `json:"wallet"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2"`
	City          string `json:"city"`
	PostCode      string `json:"postCode"`
	Country       string `json:"country"`
	State         string `json:"state"`
	Nickname      string `json:"nickname" validate:"max=40"`
}

// PaymentForm is the raw user input for a payment. Setting Frequency makes it a standing order.
type PaymentForm struct {
	SourceAccount string     `json:"sourceAccount" validate:"required"`
	PayeeID       string     `json:"payeeId" validate:"required"`
	Beneficiary   *PayeeForm `json:"beneficiary" validate:"omitempty"`
	Amount        string     `json:"amount" validate:"required"`
	Currency      string     `json:"currency" validate:"required,len=3,alpha"`
	PurposeCode   string     `json:"purposeCode" validate:"required"`
	Reference     string     `json:"reference" validate:"max=35"`
	Frequency     string     `json:"frequency"`
	StartDate     string     `json:"startDate"`
	EndDate       string     `json:"endDate"`
	Count         string     `json:"count"`
}

// ForexForm is the raw user input for a currency exchange between two own accounts.
type ForexForm struct {
	SourceAccount  string `json:"sourceAccount" validate:"required"`
	TargetAccount  string `json:"targetAccount" validate:"required"`
	SourceCurrency string `json:"sourceCurrency" validate:"required,len=3,alpha"`
	TargetCurrency string `json:"targetCurrency" validate:"required,len=3,alpha"`
	SourceAmount   string `json:"sourceAmount" validate:"required"`
}

func (f PayeeForm) normalized() PayeeForm {
	trim(&f.HolderName, &f.PayeeType, &f.AccountNumber, &f.IBAN, &f.SwiftCode, &f.Wallet,
		&f.Line1, &f.Line2, &f.City, &f.PostCode, &f.Nickname)
	f.PayeeType = strings.ToLower(f.PayeeType)
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.Country = strings.ToUpper(strings.TrimSpace(f.Country))
	f.State = strings.ToUpper(strings.TrimSpace(f.State))
	f.SortCode = strings.ReplaceAll(strings.TrimSpace(f.SortCode), "-", "")
	f.IBAN = strings.ToUpper(strings.ReplaceAll(f.IBAN, " ", ""))
	f.SwiftCode = strings.ToUpper(f.SwiftCode)
	return f
}

func (f PaymentForm) normalized() PaymentForm {
	trim(&f.SourceAccount, &f.PayeeID, &f.Amount, &f.Reference, &f.StartDate, &f.EndDate, &f.Count)
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.PurposeCode = strings.ToUpper(strings.TrimSpace(f.PurposeCode))
	f.Frequency = strings.ToLower(strings.TrimSpace(f.Frequency))
	if f.Beneficiary != nil {
		b := f.Beneficiary.normalized()
		f.Beneficiary = &b
	}
	return f
}

func (f ForexForm) normalized() ForexForm {
	trim(&f.SourceAccount, &f.TargetAccount, &f.SourceAmount)
	f.SourceCurrency = strings.ToUpper(strings.TrimSpace(f.SourceCurrency))
	f.TargetCurrency = strings.ToUpper(strings.TrimSpace(f.TargetCurrency))
	return f
}

func trim(fields ...*string) {
	for _, s := range fields {
		*s = strings.TrimSpace(*s)
	}
}
