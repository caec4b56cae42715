package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceManual is the source of entries posted without a reference.
const SourceManual = "manual"

// Entry is an immutable journal header with its ledger lines.
type Entry struct {
	ID          int64
	ChartID     int64
	Description string
	Reference   string
	Source      string
	EffectiveAt time.Time
	PostedBy    int64
	CreatedAt   time.Time
	Lines       []Line
}

// Line stores a debit or credit amount for one account.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// Totals sums the debit and credit sides of the entry.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
