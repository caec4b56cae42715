package accounts

import "time"

// Type enumerates CoA categories.
type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeRevenue   Type = "REVENUE"
	TypeExpense   Type = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

// NormalDebit reports whether balances of this type grow on the debit side.
func (t Type) NormalDebit() bool {
	return t == TypeAsset || t == TypeExpense
}

// Chart is a named namespace of accounts. Exactly one chart is active.
type Chart struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Account models a chart of accounts node. Its identity is immutable once a
// ledger line references it.
type Account struct {
	ID        int64
	ChartID   int64
	Code      string
	Name      string
	Type      Type
	Active    bool
	CreatedAt time.Time
}
