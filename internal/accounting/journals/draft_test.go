package journals

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildRejectsMalformedInput(t *testing.T) {
	base := func() PostingInput {
		return PostingInput{
			ChartID:     1,
			Description: "cash sale",
			Lines:       []LineInput{Debit(1, amount("10"), ""), Credit(2, amount("10"), "")},
		}
	}
	cases := map[string]func(in *PostingInput){
		"missing chart":      func(in *PostingInput) { in.ChartID = 0 },
		"blank description":  func(in *PostingInput) { in.Description = "  " },
		"no lines":           func(in *PostingInput) { in.Lines = nil },
		"both sides":         func(in *PostingInput) { in.Lines[0].Credit = amount("1") },
		"neither side":       func(in *PostingInput) { in.Lines[0].Debit = decimal.Zero },
		"negative":           func(in *PostingInput) { in.Lines[0].Debit = amount("-10") },
		"three decimals":     func(in *PostingInput) { in.Lines[0].Debit = amount("10.001") },
		"missing account":    func(in *PostingInput) { in.Lines[1].AccountID = 0 },
		"empty reference id": func(in *PostingInput) { in.Reference = NewReference("sale", "") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base()
			mutate(&in)
			_, err := in.Build(time.Now())
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestBuildRejectsImbalance(t *testing.T) {
	in := PostingInput{
		ChartID:     1,
		Description: "x",
		Lines:       []LineInput{Debit(1, amount("10.00"), ""), Credit(2, amount("9.99"), "")},
	}
	_, err := in.Build(time.Now())
	require.ErrorIs(t, err, shared.ErrImbalance)
	var imb *shared.ImbalanceError
	require.ErrorAs(t, err, &imb)
	require.Equal(t, "9.99", imb.Credit.StringFixed(2))
}

func TestBuildDerivesSourceAndDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	in := PostingInput{
		ChartID:     1,
		Description: " restock ",
		Lines:       []LineInput{Debit(1, amount("5"), ""), Debit(3, amount("5"), ""), Credit(2, amount("10"), "")},
		Reference:   NewReference(" Sale ", 42),
	}
	d, err := in.Build(now)
	require.NoError(t, err)
	require.Equal(t, "sale:42", d.Reference())
	require.Equal(t, "sale", d.Source())
	require.Equal(t, "restock", d.Description())
	require.Equal(t, now, d.EffectiveAt())
	require.Equal(t, "10", d.Total().String())
	require.Equal(t, []int64{1, 3, 2}, d.AccountIDs())

	in.Reference = nil
	d, err = in.Build(now)
	require.NoError(t, err)
	require.Equal(t, SourceManual, d.Source())
	require.Empty(t, d.Reference())
}
