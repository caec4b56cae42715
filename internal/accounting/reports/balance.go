package reports

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
)

// AccountBalance models a ledger account with aggregated amounts. Opening is
// the debit-minus-credit net before the report range; Debit and Credit are
// the activity inside it.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.Type
	Opening   decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Closing computes the debit-minus-credit net at the end of the range.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// Balance returns the closing amount on the account's normal side.
func (a AccountBalance) Balance() decimal.Decimal {
	if a.Type.NormalDebit() {
		return a.Closing()
	}
	return a.Closing().Neg()
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}
