package openings_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/openings"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/memstore"
)

var asOf = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService() (*openings.Service, *memstore.DB, memstore.StandardChart) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	poster := integration.NewPoster(accounts.NewRegistry(nil, nil), journals.NewEngine(nil), nil)
	return openings.NewService(db, poster, nil), db, chart
}

func TestPostOpeningBalances(t *testing.T) {
	svc, db, chart := newService()
	res, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "DEBIT", Amount: dec("500.00")},
		{Code: "3000", Side: "CREDIT", Amount: dec("500.00")},
	}})
	require.NoError(t, err)
	require.False(t, res.AlreadyPosted)
	require.Equal(t, integration.OpeningBalanceRef(chart.Chart.ID).String(), res.Entry.Reference)
	require.Len(t, res.Entry.Lines, 2)
	require.Len(t, db.Entries(), 1)

	again, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "DEBIT", Amount: dec("1")},
		{Code: "3000", Side: "CREDIT", Amount: dec("1")},
	}})
	require.NoError(t, err)
	require.True(t, again.AlreadyPosted)
	require.Equal(t, res.Entry.ID, again.Entry.ID)
	require.Len(t, db.Entries(), 1)
}

func TestPostOpeningBalancesAcceptsShortSides(t *testing.T) {
	svc, _, _ := newService()
	res, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "D", Amount: dec("500.00")},
		{Code: "3000", Side: "c", Amount: dec("500.00")},
	}})
	require.NoError(t, err)
	require.Len(t, res.Entry.Lines, 2)
	var debit, credit decimal.Decimal
	for _, l := range res.Entry.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	require.Equal(t, "500.00", debit.StringFixed(2))
	require.Equal(t, "500.00", credit.StringFixed(2))

	_, err = svc.Post(context.Background(), openings.Input{AsOf: asOf.AddDate(0, 0, 1), Lines: []openings.Line{
		{Code: "1000", Side: "X", Amount: dec("1")},
		{Code: "3000", Side: "C", Amount: dec("1")},
	}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostOpeningBalancesRejectsImbalance(t *testing.T) {
	svc, db, _ := newService()
	_, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "DEBIT", Amount: dec("500.00")},
		{Code: "3000", Side: "CREDIT", Amount: dec("400.00")},
	}})
	var imbalance *shared.ImbalanceError
	require.ErrorAs(t, err, &imbalance)
	require.Equal(t, "500.00", imbalance.Debit.StringFixed(2))
	require.Empty(t, db.Entries())
}

func TestPostOpeningBalancesRejectsDuplicateCodes(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "DEBIT", Amount: dec("100")},
		{Code: " 1000", Side: "CREDIT", Amount: dec("100")},
	}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostOpeningBalancesRejectsUnknownAccount(t *testing.T) {
	svc, db, _ := newService()
	_, err := svc.Post(context.Background(), openings.Input{AsOf: asOf, Lines: []openings.Line{
		{Code: "1000", Side: "DEBIT", Amount: dec("100")},
		{Code: "9999", Side: "CREDIT", Amount: dec("100")},
	}})
	require.ErrorIs(t, err, shared.ErrAccountResolution)
	require.Empty(t, db.Entries())
}
