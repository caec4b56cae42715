package accounts

import "strings"

// Code is a semantic account role resolved per chart, e.g. CASH → 1000.
type Code string

const (
	CodeCash              Code = "CASH"
	CodeBank              Code = "BANK"
	CodeReceivable        Code = "ACCOUNTS_RECEIVABLE"
	CodeInventory         Code = "INVENTORY"
	CodePayable           Code = "ACCOUNTS_PAYABLE"
	CodeVATPayable        Code = "VAT_PAYABLE"
	CodeOwnerEquity       Code = "OWNER_EQUITY"
	CodeRetainedEarnings  Code = "RETAINED_EARNINGS"
	CodeSalesRevenue      Code = "SALES_REVENUE"
	CodeSalesDiscount     Code = "SALES_DISCOUNT"
	CodeCOGS              Code = "COST_OF_GOODS_SOLD"
	CodeInventoryWriteOff Code = "INVENTORY_WRITE_OFF"
	CodeOperatingExpense  Code = "OPERATING_EXPENSE"
)

// defaultCodes is used when a chart has no mapping row for a semantic code.
var defaultCodes = map[Code]string{
	CodeCash:              "1000",
	CodeBank:              "1010",
	CodeReceivable:        "1100",
	CodeInventory:         "1200",
	CodePayable:           "2000",
	CodeVATPayable:        "2100",
	CodeOwnerEquity:       "3000",
	CodeRetainedEarnings:  "3100",
	CodeSalesRevenue:      "4000",
	CodeSalesDiscount:     "4100",
	CodeCOGS:              "5000",
	CodeInventoryWriteOff: "5100",
	CodeOperatingExpense:  "6000",
}

// DefaultCode returns the conventional account code for a semantic code.
func DefaultCode(code Code) (string, bool) {
	v, ok := defaultCodes[code]
	return v, ok
}

// NormalizeCode upper-cases and trims a semantic or literal code.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// StandardAccount is one account of the default chart layout.
type StandardAccount struct {
	Role Code
	Code string
	Name string
	Type Type
}

// StandardAccounts lists one account per semantic code, numbered with the
// default codes, in code order.
func StandardAccounts() []StandardAccount {
	return []StandardAccount{
		{CodeCash, defaultCodes[CodeCash], "Cash", TypeAsset},
		{CodeBank, defaultCodes[CodeBank], "Bank", TypeAsset},
		{CodeReceivable, defaultCodes[CodeReceivable], "Accounts Receivable", TypeAsset},
		{CodeInventory, defaultCodes[CodeInventory], "Inventory", TypeAsset},
		{CodePayable, defaultCodes[CodePayable], "Accounts Payable", TypeLiability},
		{CodeVATPayable, defaultCodes[CodeVATPayable], "VAT Payable", TypeLiability},
		{CodeOwnerEquity, defaultCodes[CodeOwnerEquity], "Owner Equity", TypeEquity},
		{CodeRetainedEarnings, defaultCodes[CodeRetainedEarnings], "Retained Earnings", TypeEquity},
		{CodeSalesRevenue, defaultCodes[CodeSalesRevenue], "Sales Revenue", TypeRevenue},
		{CodeSalesDiscount, defaultCodes[CodeSalesDiscount], "Sales Discount", TypeExpense},
		{CodeCOGS, defaultCodes[CodeCOGS], "Cost of Goods Sold", TypeExpense},
		{CodeInventoryWriteOff, defaultCodes[CodeInventoryWriteOff], "Inventory Write-off", TypeExpense},
		{CodeOperatingExpense, defaultCodes[CodeOperatingExpense], "Operating Expense", TypeExpense},
	}
}
