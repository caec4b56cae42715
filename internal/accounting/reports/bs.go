package reports

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// CurrentPeriodEarnings labels the synthetic equity row holding revenue
// minus expense not yet swept by a period close.
const CurrentPeriodEarnings = "Current Period Earnings"

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	AccountID int64
	Code      string
	Name      string
	Balance   decimal.Decimal
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string
	Accounts []BalanceSheetAccount
	Total    decimal.Decimal
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	Assets                    BalanceSheetSection
	Liabilities               BalanceSheetSection
	Equity                    BalanceSheetSection
	TotalLiabilitiesAndEquity decimal.Decimal
}

// BuildBalanceSheet aggregates balances into assets, liabilities, and equity
// sections. Revenue and expense fold into one synthetic equity row. A sheet
// where assets differ from liabilities plus equity means the ledger is
// corrupt and is reported as an InternalConsistencyError.
func BuildBalanceSheet(balances []AccountBalance) (BalanceSheet, error) {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	earnings := decimal.Zero

	for _, acc := range balances {
		row := BalanceSheetAccount{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Balance: acc.Balance()}
		switch acc.Type {
		case accounts.TypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.TypeLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.TypeEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		case accounts.TypeRevenue:
			earnings = earnings.Add(row.Balance)
		case accounts.TypeExpense:
			earnings = earnings.Sub(row.Balance)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	if !earnings.IsZero() {
		equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Name: CurrentPeriodEarnings, Balance: earnings})
		equity.Total = equity.Total.Add(earnings)
	}

	bs := BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		TotalLiabilitiesAndEquity: liabilities.Total.Add(equity.Total),
	}
	if !shared.Round2(bs.Assets.Total).Equal(shared.Round2(bs.TotalLiabilitiesAndEquity)) {
		return bs, &shared.InternalConsistencyError{
			Check:  "balance_sheet",
			Detail: fmt.Sprintf("assets %s != liabilities+equity %s", bs.Assets.Total.StringFixed(2), bs.TotalLiabilitiesAndEquity.StringFixed(2)),
		}
	}
	return bs, nil
}
