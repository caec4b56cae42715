// Package integration turns business events into balanced journal lines and
// posts them through the journal engine.
package integration

import (
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Accounts holds the account ids resolved for one posting, keyed by the
// semantic or literal code they were resolved from.
type Accounts map[accounts.Code]int64

func (a Accounts) id(code accounts.Code) (int64, error) {
	id, ok := a[code]
	if !ok || id <= 0 {
		return 0, &shared.AccountResolutionError{Code: string(code), Reason: "not resolved"}
	}
	return id, nil
}

// PaymentCode maps a settlement method to the account it lands in.
func PaymentCode(method string) (accounts.Code, error) {
	switch method {
	case sales.MethodCash:
		return accounts.CodeCash, nil
	case sales.MethodCard, sales.MethodTransfer:
		return accounts.CodeBank, nil
	case sales.MethodCredit:
		return accounts.CodeReceivable, nil
	}
	return "", shared.Invalid("payment_method", "unsupported method %q", method)
}

// lineSet collects lines and drops zero amounts.
type lineSet struct {
	acc   Accounts
	lines []journals.LineInput
	err   error
}

func (s *lineSet) debit(code accounts.Code, amount decimal.Decimal, memo string) {
	s.add(code, amount, memo, true)
}

func (s *lineSet) credit(code accounts.Code, amount decimal.Decimal, memo string) {
	s.add(code, amount, memo, false)
}

func (s *lineSet) add(code accounts.Code, amount decimal.Decimal, memo string, debit bool) {
	if s.err != nil || amount.IsZero() {
		return
	}
	id, err := s.acc.id(code)
	if err != nil {
		s.err = err
		return
	}
	if amount.IsNegative() {
		amount, debit = amount.Neg(), !debit
	}
	if debit {
		s.lines = append(s.lines, journals.Debit(id, amount, memo))
	} else {
		s.lines = append(s.lines, journals.Credit(id, amount, memo))
	}
}

func (s *lineSet) result() ([]journals.LineInput, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.lines) == 0 {
		return nil, shared.Invalid("lines", "posting has no non-zero amounts")
	}
	return s.lines, nil
}

// SaleCodes lists the codes SaleLines may need for sale.
func SaleCodes(sale sales.Sale) ([]accounts.Code, error) {
	codes := []accounts.Code{accounts.CodeSalesRevenue, accounts.CodeVATPayable, accounts.CodeSalesDiscount, accounts.CodeCOGS, accounts.CodeInventory}
	for _, leg := range sale.SettlementLegs() {
		code, err := PaymentCode(leg.Method)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// SaleLines debits each payment leg with its share of the total and the
// discount, credits revenue with the subtotal and VAT with the tax, and moves
// COGS out of inventory.
func SaleLines(acc Accounts, sale sales.Sale) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	for _, leg := range sale.SettlementLegs() {
		code, err := PaymentCode(leg.Method)
		if err != nil {
			return nil, err
		}
		set.debit(code, leg.Amount, leg.Method)
	}
	set.debit(accounts.CodeSalesDiscount, sale.Discount, "discount")
	set.credit(accounts.CodeSalesRevenue, sale.Subtotal, "revenue")
	set.credit(accounts.CodeVATPayable, sale.Tax, "vat")
	if sale.COGS.IsPositive() {
		set.debit(accounts.CodeCOGS, sale.COGS, "cogs")
		set.credit(accounts.CodeInventory, sale.COGS, "inventory")
	}
	return set.result()
}

// LegAmount is the share of a refund returned through one payment method.
type LegAmount struct {
	Method string
	Amount decimal.Decimal
}

// RefundAmounts is what a refund returns and restores.
type RefundAmounts struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	COGS     decimal.Decimal
	Legs     []LegAmount
}

// Total is the amount paid back to the customer.
func (r RefundAmounts) Total() decimal.Decimal {
	return r.Subtotal.Sub(r.Discount).Add(r.Tax)
}

// FullRefundAmounts mirrors the stored sale snapshot. cogs is the value of
// the restored movements.
func FullRefundAmounts(sale sales.Sale, cogs decimal.Decimal) RefundAmounts {
	out := RefundAmounts{Subtotal: sale.Subtotal, Discount: sale.Discount, Tax: sale.Tax, COGS: cogs}
	for _, leg := range sale.SettlementLegs() {
		out.Legs = append(out.Legs, LegAmount{Method: leg.Method, Amount: leg.Amount})
	}
	return out
}

// RefundCodes lists the codes RefundLines may need for r.
func RefundCodes(r RefundAmounts) ([]accounts.Code, error) {
	codes := []accounts.Code{accounts.CodeSalesRevenue, accounts.CodeVATPayable, accounts.CodeSalesDiscount, accounts.CodeCOGS, accounts.CodeInventory}
	for _, leg := range r.Legs {
		code, err := PaymentCode(leg.Method)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// RefundLines is the mirror of SaleLines for the refunded amounts, with the
// cost moved back into inventory.
func RefundLines(acc Accounts, r RefundAmounts) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	set.debit(accounts.CodeSalesRevenue, r.Subtotal, "revenue reversal")
	set.debit(accounts.CodeVATPayable, r.Tax, "vat reversal")
	set.credit(accounts.CodeSalesDiscount, r.Discount, "discount reversal")
	for _, leg := range r.Legs {
		code, err := PaymentCode(leg.Method)
		if err != nil {
			return nil, err
		}
		set.credit(code, leg.Amount, leg.Method)
	}
	if r.COGS.IsPositive() {
		set.debit(accounts.CodeInventory, r.COGS, "inventory restored")
		set.credit(accounts.CodeCOGS, r.COGS, "cogs reversal")
	}
	return set.result()
}

// ExpenseLines debits the expense account and credits where it was paid from.
func ExpenseLines(acc Accounts, expense, paidFrom accounts.Code, amount decimal.Decimal) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	set.debit(expense, amount, "expense")
	set.credit(paidFrom, amount, "paid")
	return set.result()
}

// Side is the ledger side of an opening balance line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// OpeningLine is one account balance brought into the ledger.
type OpeningLine struct {
	Code   accounts.Code
	Side   Side
	Amount decimal.Decimal
}

// OpeningLines emits one line per opening balance.
func OpeningLines(acc Accounts, lines []OpeningLine) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	for _, l := range lines {
		switch l.Side {
		case SideDebit:
			set.debit(l.Code, l.Amount, "opening balance")
		case SideCredit:
			set.credit(l.Code, l.Amount, "opening balance")
		default:
			return nil, shared.Invalid("side", "unknown side %q", l.Side)
		}
	}
	return set.result()
}

// PurchaseReceiptLines debits inventory with the received value and credits
// the settlement account, payable unless paid on receipt.
func PurchaseReceiptLines(acc Accounts, value decimal.Decimal, settlement accounts.Code) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	set.debit(accounts.CodeInventory, value, "stock received")
	set.credit(settlement, value, "supplier")
	return set.result()
}

// PeriodCloseLines zeroes every revenue and expense account with activity in
// the range and books the net to the retained earnings account. It returns
// nil lines when there is nothing to sweep.
func PeriodCloseLines(balances []reports.AccountBalance, retainedID int64) ([]journals.LineInput, error) {
	var lines []journals.LineInput
	net := decimal.Zero
	for _, b := range balances {
		if b.Type != accounts.TypeRevenue && b.Type != accounts.TypeExpense {
			continue
		}
		activity := b.Debit.Sub(b.Credit)
		switch {
		case activity.IsPositive():
			lines = append(lines, journals.Credit(b.AccountID, activity, "close "+b.Code))
		case activity.IsNegative():
			lines = append(lines, journals.Debit(b.AccountID, activity.Neg(), "close "+b.Code))
		default:
			continue
		}
		net = net.Add(activity)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if retainedID <= 0 {
		return nil, &shared.AccountResolutionError{Code: string(accounts.CodeRetainedEarnings), Reason: "not resolved"}
	}
	switch {
	case net.IsPositive():
		lines = append(lines, journals.Debit(retainedID, net, "net loss"))
	case net.IsNegative():
		lines = append(lines, journals.Credit(retainedID, net.Neg(), "net income"))
	}
	return lines, nil
}

// WriteOffLines moves value between inventory and the write-off account:
// stock leaving writes off, stock found reverses the write-off.
func WriteOffLines(acc Accounts, value decimal.Decimal, outbound bool) ([]journals.LineInput, error) {
	set := &lineSet{acc: acc}
	if outbound {
		set.debit(accounts.CodeInventoryWriteOff, value, "write-off")
		set.credit(accounts.CodeInventory, value, "inventory")
	} else {
		set.debit(accounts.CodeInventory, value, "inventory")
		set.credit(accounts.CodeInventoryWriteOff, value, "write-off reversal")
	}
	return set.result()
}
