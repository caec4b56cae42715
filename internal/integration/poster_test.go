package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/memstore"
)

func TestPostIdempotentReturnsExistingEntry(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	poster := integration.NewPoster(accounts.NewRegistry(nil, nil), journals.NewEngine(nil), nil)
	ctx := context.Background()

	posting := func(tx store.Tx) (journals.PostingInput, error) {
		acc, err := poster.Resolve(ctx, tx, chart.Chart.ID, accounts.CodeOperatingExpense, accounts.CodeBank)
		if err != nil {
			return journals.PostingInput{}, err
		}
		lines, err := integration.ExpenseLines(acc, accounts.CodeOperatingExpense, accounts.CodeBank, decimal.NewFromInt(75))
		if err != nil {
			return journals.PostingInput{}, err
		}
		return journals.PostingInput{
			ChartID:     chart.Chart.ID,
			Description: "rent",
			Lines:       lines,
			Reference:   integration.ExpenseRef("RENT-01"),
			EffectiveAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	var first, second journals.Entry
	var existed bool
	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		in, err := posting(tx)
		if err != nil {
			return err
		}
		first, existed, err = poster.PostIdempotent(ctx, tx, in)
		return err
	}))
	require.False(t, existed)

	require.NoError(t, db.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		in, err := posting(tx)
		if err != nil {
			return err
		}
		second, existed, err = poster.PostIdempotent(ctx, tx, in)
		return err
	}))
	require.True(t, existed)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, db.Entries(), 1)

	err := db.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		in, err := posting(tx)
		if err != nil {
			return err
		}
		_, err = poster.Post(ctx, tx, in)
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicateReference)
}

func TestPeriodCloseReference(t *testing.T) {
	ref := integration.PeriodCloseRef(3, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "period_close:3:2025-01-01:2025-01-31", ref.String())
}
