package integration

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testAccounts = Accounts{
	accounts.CodeCash:              1,
	accounts.CodeBank:              2,
	accounts.CodeReceivable:        3,
	accounts.CodeInventory:         4,
	accounts.CodePayable:           5,
	accounts.CodeVATPayable:        6,
	accounts.CodeRetainedEarnings:  7,
	accounts.CodeSalesRevenue:      8,
	accounts.CodeSalesDiscount:     9,
	accounts.CodeCOGS:              10,
	accounts.CodeInventoryWriteOff: 11,
	accounts.CodeOperatingExpense:  12,
}

func requireBalanced(t *testing.T, lines []journals.LineInput) {
	t.Helper()
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	require.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
}

func byAccount(lines []journals.LineInput) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, l := range lines {
		out[l.AccountID] = out[l.AccountID].Add(l.Debit).Sub(l.Credit)
	}
	return out
}

func cashSale() sales.Sale {
	return sales.Sale{
		ID:            1,
		PaymentMethod: sales.MethodCash,
		Subtotal:      dec("100"),
		Discount:      dec("10"),
		Tax:           dec("9"),
		Total:         dec("99"),
		COGS:          dec("40"),
	}
}

func TestSaleLines(t *testing.T) {
	lines, err := SaleLines(testAccounts, cashSale())
	require.NoError(t, err)
	requireBalanced(t, lines)
	net := byAccount(lines)
	require.Equal(t, "99", net[1].String())
	require.Equal(t, "10", net[9].String())
	require.Equal(t, "-100", net[8].String())
	require.Equal(t, "-9", net[6].String())
	require.Equal(t, "40", net[10].String())
	require.Equal(t, "-40", net[4].String())
}

func TestSaleLinesSplitAndZeroAmounts(t *testing.T) {
	sale := sales.Sale{
		PaymentMethod: sales.MethodSplit,
		Subtotal:      dec("110"),
		Discount:      decimal.Zero,
		Tax:           decimal.Zero,
		Total:         dec("110"),
		COGS:          decimal.Zero,
		Legs: []sales.PaymentLeg{
			{Method: sales.MethodCard, Amount: dec("60")},
			{Method: sales.MethodCredit, Amount: dec("50")},
		},
	}
	lines, err := SaleLines(testAccounts, sale)
	require.NoError(t, err)
	require.Len(t, lines, 3, "zero discount, tax and cost produce no lines")
	requireBalanced(t, lines)
	require.Equal(t, "50", byAccount(lines)[3].String())
}

func TestSaleLinesErrors(t *testing.T) {
	sale := cashSale()
	sale.PaymentMethod = "BITCOIN"
	_, err := SaleLines(testAccounts, sale)
	require.ErrorIs(t, err, shared.ErrValidation)

	partial := Accounts{accounts.CodeCash: 1}
	_, err = SaleLines(partial, cashSale())
	require.ErrorIs(t, err, shared.ErrAccountResolution)
}

func TestFullRefundMirrorsSale(t *testing.T) {
	sale := cashSale()
	saleLines, err := SaleLines(testAccounts, sale)
	require.NoError(t, err)
	refundLines, err := RefundLines(testAccounts, FullRefundAmounts(sale, sale.COGS))
	require.NoError(t, err)
	requireBalanced(t, refundLines)

	saleNet, refundNet := byAccount(saleLines), byAccount(refundLines)
	for id, amount := range saleNet {
		require.True(t, amount.Add(refundNet[id]).IsZero(), "account %d nets to zero", id)
	}
}

func TestOpeningLines(t *testing.T) {
	lines, err := OpeningLines(testAccounts, []OpeningLine{
		{Code: accounts.CodeCash, Side: SideDebit, Amount: dec("500")},
		{Code: accounts.CodeInventory, Side: SideDebit, Amount: dec("250")},
		{Code: accounts.CodeRetainedEarnings, Side: SideCredit, Amount: dec("750")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	requireBalanced(t, lines)

	_, err = OpeningLines(testAccounts, []OpeningLine{{Code: accounts.CodeCash, Side: "LEFT", Amount: dec("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPeriodCloseLines(t *testing.T) {
	balances := []reports.AccountBalance{
		{AccountID: 1, Code: "1000", Type: accounts.TypeAsset, Debit: dec("900")},
		{AccountID: 8, Code: "4000", Type: accounts.TypeRevenue, Debit: dec("20"), Credit: dec("500")},
		{AccountID: 12, Code: "6000", Type: accounts.TypeExpense, Debit: dec("300")},
		{AccountID: 13, Code: "6100", Type: accounts.TypeExpense, Debit: dec("5"), Credit: dec("5")},
	}
	lines, err := PeriodCloseLines(balances, 7)
	require.NoError(t, err)
	requireBalanced(t, lines)
	net := byAccount(lines)
	require.Equal(t, "480", net[8].String())
	require.Equal(t, "-300", net[12].String())
	require.Equal(t, "-180", net[7].String())
	_, touched := net[1]
	require.False(t, touched)

	none, err := PeriodCloseLines(balances[:1], 7)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestWriteOffAndReceiptLines(t *testing.T) {
	out, err := WriteOffLines(testAccounts, dec("12.50"), true)
	require.NoError(t, err)
	require.Equal(t, "12.5", byAccount(out)[11].String())

	in, err := WriteOffLines(testAccounts, dec("12.50"), false)
	require.NoError(t, err)
	require.Equal(t, "12.5", byAccount(in)[4].String())

	receipt, err := PurchaseReceiptLines(testAccounts, dec("300"), accounts.CodePayable)
	require.NoError(t, err)
	require.Equal(t, "-300", byAccount(receipt)[5].String())

	_, err = ExpenseLines(testAccounts, accounts.CodeOperatingExpense, accounts.CodeBank, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
}
