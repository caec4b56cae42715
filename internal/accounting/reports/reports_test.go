package reports

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildTrialBalance(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Opening: d("1000"), Debit: d("200"), Credit: d("150")},
		{Code: "1010", Name: "Bank", Type: accounts.TypeAsset, Debit: d("100"), Credit: d("100")},
		{Code: "2000", Name: "Accounts Payable", Type: accounts.TypeLiability, Debit: d("10"), Credit: d("400")},
		{Code: "3000", Name: "Owner Equity", Type: accounts.TypeEquity, Credit: d("660")},
	}

	tb := BuildTrialBalance(balances)
	require.Len(t, tb.Groups, 3)
	require.Len(t, tb.Groups[0].Accounts, 1, "zero balance bank is omitted")
	require.Equal(t, "1050.00", tb.TotalDebit.StringFixed(2))
	require.Equal(t, "1050.00", tb.TotalCredit.StringFixed(2))
	require.True(t, tb.Balanced())
	require.Equal(t, "390.00", tb.Groups[1].Accounts[0].Credit.StringFixed(2))
}

func TestBuildProfitAndLoss(t *testing.T) {
	balances := []AccountBalance{
		{Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, Credit: d("1200")},
		{Code: "5000", Name: "COGS", Type: accounts.TypeExpense, Debit: d("300")},
		{Code: "6000", Name: "Marketing", Type: accounts.TypeExpense, Debit: d("200")},
		{Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Debit: d("700")},
	}

	pl := BuildProfitAndLoss(balances)
	require.Equal(t, "1200.00", pl.Revenue.Total.StringFixed(2))
	require.Equal(t, "500.00", pl.Expense.Total.StringFixed(2))
	require.Equal(t, "700.00", pl.NetIncome.StringFixed(2))
}

func TestBuildBalanceSheetFoldsEarnings(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Debit: d("1210"), Credit: d("20")},
		{Code: "2000", Name: "AP", Type: accounts.TypeLiability, Debit: d("10"), Credit: d("40")},
		{Code: "3000", Name: "Equity", Type: accounts.TypeEquity, Credit: d("500")},
		{Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, Credit: d("1000")},
		{Code: "6000", Name: "Rent", Type: accounts.TypeExpense, Debit: d("340")},
	}

	bs, err := BuildBalanceSheet(balances)
	require.NoError(t, err)
	require.Equal(t, "1190.00", bs.Assets.Total.StringFixed(2))
	require.Equal(t, "30.00", bs.Liabilities.Total.StringFixed(2))
	require.Equal(t, "1160.00", bs.Equity.Total.StringFixed(2))
	last := bs.Equity.Accounts[len(bs.Equity.Accounts)-1]
	require.Equal(t, CurrentPeriodEarnings, last.Name)
	require.Equal(t, "660.00", last.Balance.StringFixed(2))
}

func TestBuildBalanceSheetDetectsCorruption(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Debit: d("100")},
		{Code: "3000", Name: "Equity", Type: accounts.TypeEquity, Credit: d("99.99")},
	}
	_, err := BuildBalanceSheet(balances)
	require.ErrorIs(t, err, shared.ErrInternalConsistency)
}

func TestProfitAndLossExcludesPeriodClose(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"account_id", "code", "name", "type", "opening", "debit", "credit"}).
		AddRow(int64(4), "4000", "Sales", accounts.TypeRevenue, d("0"), d("0"), d("1000"))
	mock.ExpectQuery(`SELECT a\.id AS account_id.*FROM accounts a JOIN ledger_lines l.*e\.source NOT IN`).
		WithArgs(from, from, from, int64(1), to, SourcePeriodClose).
		WillReturnRows(rows)

	svc := NewService(NewStore(mock))
	pl, err := svc.ProfitAndLoss(context.Background(), 1, &from, to)
	require.NoError(t, err)
	require.Equal(t, "1000.00", pl.NetIncome.StringFixed(2))
	require.NoError(t, mock.ExpectationsWereMet())
}
