package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is used whenever a definition does not disclose one.
const DefaultCurrency = "USD"

// Money is a decimal amount string tagged with an ISO currency code.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// New formats d with exactly two fraction digits.
func New(d decimal.Decimal, currencyCode string) Money {
	return Money{Amount: d.StringFixed(2), CurrencyCode: CurrencyOrDefault(currencyCode)}
}

// Zero returns a zero amount in the given currency.
func Zero(currencyCode string) Money {
	return New(decimal.Zero, currencyCode)
}

// Decimal parses the amount. Unparseable amounts count as zero.
func (m Money) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(m.Amount))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsZero reports whether the parsed amount equals zero.
func (m Money) IsZero() bool {
	return m.Decimal().IsZero()
}

// CurrencyOrDefault trims code and falls back to DefaultCurrency.
func CurrencyOrDefault(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// Format renders m for display using the locale's number conventions and the
// currency's narrow symbol. Unknown currency codes fall back to the raw code.
func Format(m Money, locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	amount, _ := m.Decimal().Round(2).Float64()
	unit, err := currency.ParseISO(CurrencyOrDefault(m.CurrencyCode))
	if err != nil {
		return message.NewPrinter(tag).Sprintf("%s %.2f", CurrencyOrDefault(m.CurrencyCode), amount)
	}
	return message.NewPrinter(tag).Sprint(currency.NarrowSymbol(unit.Amount(amount)))
}
