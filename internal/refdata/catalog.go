// Package refdata holds read-only reference data (countries and payment purposes) shared by
// every builder and engine in the process.
package refdata

import (
	"sort"
	"strings"
)

// Country is an ISO 3166 alpha-2 country. States is non-empty when an address in it must name a state.
type Country struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	States []string `json:"states,omitempty"`
}

// HasStates reports whether addresses in this country require a state.
func (c Country) HasStates() bool { return len(c.States) > 0 }

// HasState reports whether s is one of the country's states (case-insensitive).
func (c Country) HasState(s string) bool {
	for _, st := range c.States {
		if strings.EqualFold(st, s) {
			return true
		}
	}
	return false
}

// Purpose is a payment purpose code.
type Purpose struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Catalog answers reference lookups. Implementations must be safe for concurrent use.
type Catalog interface {
	Country(code string) (Country, bool)
	Purpose(code string) (Purpose, bool)
	Countries() []Country
	Purposes() []Purpose
}

// StaticCatalog is an immutable in-memory Catalog.
type StaticCatalog struct {
	countries map[string]Country
	purposes  map[string]Purpose
}

// NewStaticCatalog indexes countries and purposes by upper-cased code. The inputs are copied.
func NewStaticCatalog(countries []Country, purposes []Purpose) *StaticCatalog {
	c := &StaticCatalog{
		countries: make(map[string]Country, len(countries)),
		purposes:  make(map[string]Purpose, len(purposes)),
	}
	for _, co := range countries {
		co.Code = strings.ToUpper(co.Code)
		co.States = append([]string(nil), co.States...)
		c.countries[co.Code] = co
	}
	for _, p := range purposes {
		p.Code = strings.ToUpper(p.Code)
		c.purposes[p.Code] = p
	}
	return c
}

// Country looks up a country by code.
func (c *StaticCatalog) Country(code string) (Country, bool) {
	co, ok := c.countries[strings.ToUpper(strings.TrimSpace(code))]
	return co, ok
}

// Purpose looks up a purpose by code.
func (c *StaticCatalog) Purpose(code string) (Purpose, bool) {
	p, ok := c.purposes[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// Countries returns all countries sorted by code.
func (c *StaticCatalog) Countries() []Country {
	out := make([]Country, 0, len(c.countries))
	for _, co := range c.countries {
		out = append(out, co)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Purposes returns all purposes sorted by code.
func (c *StaticCatalog) Purposes() []Purpose {
	out := make([]Purpose, 0, len(c.purposes))
	for _, p := range c.purposes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Default returns the built-in catalog.
func Default() *StaticCatalog {
	return NewStaticCatalog(defaultCountries, defaultPurposes)
}

var defaultCountries = []Country{
	{Code: "GB", Name: "United Kingdom"},
	{Code: "IE", Name: "Ireland"},
	{Code: "FR", Name: "France"},
	{Code: "DE", Name: "Germany"},
	{Code: "ES", Name: "Spain"},
	{Code: "IT", Name: "Italy"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "PL", Name: "Poland"},
	{Code: "CH", Name: "Switzerland"},
	{Code: "AE", Name: "United Arab Emirates"},
	{Code: "NG", Name: "Nigeria"},
	{Code: "IN", Name: "India"},
	{Code: "JP", Name: "Japan"},
	{Code: "US", Name: "United States", States: []string{
		"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL", "GA", "HI", "ID", "IL", "IN", "IA",
		"KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ", "NM",
		"NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN", "TX", "UT", "VT", "VA", "WA",
		"WV", "WI", "WY",
	}},
	{Code: "CA", Name: "Canada", States: []string{
		"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT",
	}},
	{Code: "AU", Name: "Australia", States: []string{"ACT", "NSW", "NT", "QLD", "SA", "TAS", "VIC", "WA"}},
}

var defaultPurposes = []Purpose{
	{Code: "SUPP", Description: "Supplier payment"},
	{Code: "SALA", Description: "Salary payment"},
	{Code: "RENT", Description: "Rent"},
	{Code: "TAXS", Description: "Tax payment"},
	{Code: "LOAN", Description: "Loan repayment"},
	{Code: "INTC", Description: "Intra-company payment"},
	{Code: "GDDS", Description: "Purchase of goods"},
	{Code: "SCVE", Description: "Purchase of services"},
	{Code: "OTHR", Description: "Other"},
}
