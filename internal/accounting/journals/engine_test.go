package journals_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/memstore"
)

type recorder struct {
	outcomes []string
}

func (r *recorder) ObservePosting(source, outcome string) {
	r.outcomes = append(r.outcomes, source+"/"+outcome)
}

func cashSale(chart memstore.StandardChart, ref *journals.Reference, at time.Time) journals.PostingInput {
	return journals.PostingInput{
		ChartID:     chart.Chart.ID,
		Description: "cash sale",
		Reference:   ref,
		EffectiveAt: at,
		Lines: []journals.LineInput{
			journals.Debit(chart.ID(accounts.CodeCash), decimal.NewFromInt(100), ""),
			journals.Credit(chart.ID(accounts.CodeSalesRevenue), decimal.NewFromInt(100), ""),
		},
	}
}

func post(t *testing.T, db *memstore.DB, engine *journals.Engine, in journals.PostingInput) (journals.Entry, error) {
	t.Helper()
	var entry journals.Entry
	err := db.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		entry, err = engine.Post(ctx, tx, in)
		return err
	})
	return entry, err
}

func TestPostWritesBalancedEntry(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	rec := &recorder{}
	engine := journals.NewEngine(rec)
	at := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

	entry, err := post(t, db, engine, cashSale(chart, journals.NewReference("sale", 1), at))
	require.NoError(t, err)
	require.Equal(t, "sale:1", entry.Reference)
	require.Equal(t, "sale", entry.Source)
	debit, credit := entry.Totals()
	require.True(t, debit.Equal(credit))
	require.Equal(t, []string{"sale/posted"}, rec.outcomes)
}

func TestPostRejectsDuplicateReference(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	rec := &recorder{}
	engine := journals.NewEngine(rec)
	at := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

	_, err := post(t, db, engine, cashSale(chart, journals.NewReference("sale", 1), at))
	require.NoError(t, err)
	_, err = post(t, db, engine, cashSale(chart, journals.NewReference("SALE", " 1"), at))
	require.ErrorIs(t, err, shared.ErrDuplicateReference)
	require.Len(t, db.Entries(), 1)
	require.Equal(t, "sale/duplicate", rec.outcomes[1])
}

func TestPostRejectsInactiveChartAndForeignAccounts(t *testing.T) {
	db := memstore.New()
	active := db.SeedStandardChart("main", true)
	inactive := db.SeedStandardChart("draft", false)
	engine := journals.NewEngine(nil)
	at := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

	_, err := post(t, db, engine, cashSale(inactive, nil, at))
	require.ErrorIs(t, err, shared.ErrAccountResolution)

	mixed := cashSale(active, nil, at)
	mixed.Lines[1].AccountID = inactive.ID(accounts.CodeSalesRevenue)
	_, err = post(t, db, engine, mixed)
	require.ErrorIs(t, err, shared.ErrAccountResolution)
	require.Empty(t, db.Entries())
}

func TestPostRejectsLockedPeriod(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	engine := journals.NewEngine(nil)
	require.NoError(t, db.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Periods().InsertClose(ctx, periods.Close{
			ChartID: chart.Chart.ID,
			Start:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:     time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		})
		return err
	}))

	_, err := post(t, db, engine, cashSale(chart, nil, time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	_, err = post(t, db, engine, cashSale(chart, nil, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
}

func TestOutcomeLabels(t *testing.T) {
	require.Equal(t, "posted", journals.Outcome(nil))
	require.Equal(t, "invalid", journals.Outcome(shared.Invalid("x", "y")))
	require.Equal(t, "period_locked", journals.Outcome(&shared.PeriodLockedError{}))
	require.Equal(t, "error", journals.Outcome(context.Canceled))
}
