package types

import (
	"github.com/shopspring/decimal"

	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// Money pairs an amount in the currency's smallest unit with its currency. All
// arithmetic stays in integer cents; decimals appear only at the display edge.
type Money struct {
	AmountCents int64          `json:"amount_cents"`
	Currency    enums.Currency `json:"currency"`
	Display     string         `json:"display"`
}

// NewMoney builds a Money value with its display string populated.
func NewMoney(amountCents int64, currency enums.Currency) Money {
	return Money{
		AmountCents: amountCents,
		Currency:    currency,
		Display:     FormatCents(amountCents),
	}
}

// FormatCents renders an integer cent amount as a two-decimal string, e.g. 12345
// becomes "123.45" and -50 becomes "-0.50".
func FormatCents(amountCents int64) string {
	return decimal.New(amountCents, -2).StringFixed(2)
}
