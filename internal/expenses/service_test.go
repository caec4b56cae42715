package expenses_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/expenses"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/memstore"
)

func newService() (*expenses.Service, *memstore.DB, memstore.StandardChart) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	poster := integration.NewPoster(accounts.NewRegistry(nil, nil), journals.NewEngine(nil), nil)
	return expenses.NewService(db, poster, nil), db, chart
}

func TestRecordExpense(t *testing.T) {
	svc, _, chart := newService()
	res, err := svc.Record(context.Background(), expenses.Input{
		Reference:   "RENT-2025-03",
		AccountCode: "6000",
		Amount:      decimal.RequireFromString("1200.00"),
		PaidFrom:    "bank",
		IncurredAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.False(t, res.AlreadyPosted)
	entry := res.Entry
	require.Equal(t, "expense:rent-2025-03", entry.Reference)
	require.Equal(t, "expense", entry.Source)
	require.Len(t, entry.Lines, 2)
	for _, l := range entry.Lines {
		if l.Debit.IsPositive() {
			require.Equal(t, chart.ID(accounts.CodeOperatingExpense), l.AccountID)
		} else {
			require.Equal(t, chart.ID(accounts.CodeBank), l.AccountID)
		}
	}
}

func TestRecordExpenseRequiresExpenseAccount(t *testing.T) {
	svc, db, _ := newService()
	_, err := svc.Record(context.Background(), expenses.Input{
		Reference:   "X-1",
		AccountCode: "INVENTORY",
		Amount:      decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, db.Entries())
}

func TestRecordExpenseRejectsBadAmount(t *testing.T) {
	svc, _, _ := newService()
	for _, amount := range []string{"0", "-5", "1.005"} {
		_, err := svc.Record(context.Background(), expenses.Input{
			Reference:   "X-2",
			AccountCode: "OPERATING_EXPENSE",
			Amount:      decimal.RequireFromString(amount),
		})
		require.ErrorIs(t, err, shared.ErrValidation, amount)
	}
}

func TestRecordExpenseTwiceReturnsFirstEntry(t *testing.T) {
	svc, db, _ := newService()
	in := expenses.Input{Reference: "X-3", AccountCode: "OPERATING_EXPENSE", Amount: decimal.NewFromInt(15)}
	first, err := svc.Record(context.Background(), in)
	require.NoError(t, err)
	again, err := svc.Record(context.Background(), in)
	require.NoError(t, err)
	require.True(t, again.AlreadyPosted)
	require.Equal(t, first.Entry.ID, again.Entry.ID)
	require.Len(t, db.Entries(), 1)
}
