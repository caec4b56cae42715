package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// LineInput describes one side of a posting line.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// Debit builds a debit line.
func Debit(accountID int64, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Debit: amount, Memo: memo}
}

// Credit builds a credit line.
func Credit(accountID int64, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Credit: amount, Memo: memo}
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	ChartID     int64
	Description string
	Lines       []LineInput
	Reference   *Reference
	EffectiveAt time.Time
	PostedBy    int64
}

// Draft is a validated, balanced posting ready to be written. It cannot be
// modified after Build.
type Draft struct {
	chartID     int64
	description string
	reference   string
	source      string
	effectiveAt time.Time
	postedBy    int64
	lines       []LineInput
	total       decimal.Decimal
}

func (d Draft) ChartID() int64         { return d.chartID }
func (d Draft) Description() string    { return d.description }
func (d Draft) Reference() string      { return d.reference }
func (d Draft) Source() string         { return d.source }
func (d Draft) EffectiveAt() time.Time { return d.effectiveAt }
func (d Draft) PostedBy() int64        { return d.postedBy }
func (d Draft) Total() decimal.Decimal { return d.total }
func (d Draft) Lines() []LineInput     { return append([]LineInput(nil), d.lines...) }
func (d Draft) AccountIDs() []int64    { return accountIDs(d.lines) }

// Build validates the input and returns the immutable draft. An effective time
// left zero defaults to now.
func (in PostingInput) Build(now time.Time) (Draft, error) {
	if in.ChartID <= 0 {
		return Draft{}, shared.Invalid("chart_id", "required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return Draft{}, shared.Invalid("description", "required")
	}
	if len(in.Lines) == 0 {
		return Draft{}, shared.Invalid("lines", "at least one line required")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if err := validateLine(idx, line); err != nil {
			return Draft{}, err
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return Draft{}, &shared.ImbalanceError{Debit: debit, Credit: credit}
	}

	d := Draft{
		chartID:     in.ChartID,
		description: desc,
		source:      SourceManual,
		effectiveAt: in.EffectiveAt,
		postedBy:    in.PostedBy,
		lines:       append([]LineInput(nil), in.Lines...),
		total:       debit,
	}
	if d.effectiveAt.IsZero() {
		d.effectiveAt = now
	}
	d.effectiveAt = d.effectiveAt.UTC()
	if in.Reference != nil {
		if normalizePart(in.Reference.Type) == "" || normalizePart(in.Reference.ID) == "" {
			return Draft{}, shared.Invalid("reference", "type and id required")
		}
		d.reference = in.Reference.String()
		d.source = normalizePart(in.Reference.Type)
	}
	return d, nil
}

func validateLine(idx int, line LineInput) error {
	field := fmt.Sprintf("lines[%d]", idx)
	if line.AccountID <= 0 {
		return shared.Invalid(field, "account required")
	}
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return shared.Invalid(field, "negative amount")
	}
	debit, credit := line.Debit.IsPositive(), line.Credit.IsPositive()
	if debit == credit {
		return shared.Invalid(field, "exactly one of debit or credit must be positive")
	}
	amount := line.Debit
	if credit {
		amount = line.Credit
	}
	if !shared.IsMinorUnit(amount) {
		return shared.Invalid(field, "amount %s has more than two decimals", amount.String())
	}
	if amount.LessThan(shared.MinAmount) {
		return shared.Invalid(field, "amount below %s", shared.MinAmount.StringFixed(2))
	}
	return nil
}

func accountIDs(lines []LineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	out := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		out = append(out, l.AccountID)
	}
	return out
}
