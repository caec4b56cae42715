package integration

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// RefundLine requests quantity of one sale item back.
type RefundLine struct {
	SaleItemID int64
	Quantity   decimal.Decimal
}

// ItemAmounts are the amounts refunded for one sale item.
type ItemAmounts struct {
	SaleItemID int64
	ProductID  int64
	Quantity   decimal.Decimal
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	// Exhausts is set when the line refunds the last of the item.
	Exhausts bool
}

type itemTotals struct {
	qty, subtotal, discount, tax decimal.Decimal
}

func refundedByItem(prior []sales.ItemRefund) map[int64]itemTotals {
	out := make(map[int64]itemTotals)
	for _, r := range prior {
		t := out[r.SaleItemID]
		t.qty = t.qty.Add(r.Quantity)
		t.subtotal = t.subtotal.Add(r.Subtotal)
		t.discount = t.discount.Add(r.Discount)
		t.tax = t.tax.Add(r.Tax)
		out[r.SaleItemID] = t
	}
	return out
}

// AggregateLines merges duplicate item lines and orders them by item id.
func AggregateLines(lines []RefundLine) ([]RefundLine, error) {
	if len(lines) == 0 {
		return nil, shared.Invalid("lines", "at least one line required")
	}
	byItem := make(map[int64]decimal.Decimal)
	for _, l := range lines {
		if l.SaleItemID <= 0 {
			return nil, shared.Invalid("sale_item_id", "required")
		}
		if !l.Quantity.IsPositive() {
			return nil, shared.Invalid("quantity", "must be positive for item %d", l.SaleItemID)
		}
		byItem[l.SaleItemID] = byItem[l.SaleItemID].Add(l.Quantity)
	}
	out := make([]RefundLine, 0, len(byItem))
	for id, q := range byItem {
		out = append(out, RefundLine{SaleItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleItemID < out[j].SaleItemID })
	return out, nil
}

// ProrateItems computes the refunded amounts of each line by quantity. The
// line that refunds the last of an item takes whatever of the item's amounts
// earlier refunds left, so cumulative refunds equal the sale exactly.
// Requests above the refundable quantity yield OverRefundError.
func ProrateItems(sale sales.Sale, prior []sales.ItemRefund, lines []RefundLine) ([]ItemAmounts, error) {
	refunded := refundedByItem(prior)
	out := make([]ItemAmounts, 0, len(lines))
	for _, l := range lines {
		item, ok := sale.Item(l.SaleItemID)
		if !ok {
			return nil, shared.Invalid("sale_item_id", "item %d is not part of sale %d", l.SaleItemID, sale.ID)
		}
		done := refunded[item.ID]
		refundable := item.Quantity.Sub(done.qty)
		if l.Quantity.GreaterThan(refundable) {
			return nil, &shared.OverRefundError{SaleItemID: item.ID, Requested: l.Quantity, Refundable: refundable}
		}
		amounts := ItemAmounts{SaleItemID: item.ID, ProductID: item.ProductID, Quantity: l.Quantity}
		if l.Quantity.Equal(refundable) {
			amounts.Exhausts = true
			amounts.Subtotal = item.LineSubtotal.Sub(done.subtotal)
			amounts.Discount = item.Discount.Sub(done.discount)
			amounts.Tax = item.Tax.Sub(done.tax)
		} else {
			amounts.Subtotal = shared.Prorate(item.LineSubtotal, l.Quantity, item.Quantity)
			amounts.Discount = shared.Prorate(item.Discount, l.Quantity, item.Quantity)
			amounts.Tax = shared.Prorate(item.Tax, l.Quantity, item.Quantity)
		}
		out = append(out, amounts)
	}
	return out, nil
}

// ProrateLegs splits amount across the sale's settlement legs by their share
// of the sale total, the last leg taking the rounding remainder. When
// exhausting, every leg instead takes what earlier refunds left on it;
// earlier per-leg shares are replayed from priorTotals in refund order.
func ProrateLegs(sale sales.Sale, priorTotals []decimal.Decimal, amount decimal.Decimal, exhausting bool) []LegAmount {
	legs := sale.SettlementLegs()
	if !exhausting {
		return splitLegs(legs, sale.Total, amount)
	}
	used := make([]decimal.Decimal, len(legs))
	for _, total := range priorTotals {
		for i, share := range splitLegs(legs, sale.Total, total) {
			used[i] = used[i].Add(share.Amount)
		}
	}
	out := make([]LegAmount, len(legs))
	for i, leg := range legs {
		out[i] = LegAmount{Method: leg.Method, Amount: leg.Amount.Sub(used[i])}
	}
	return out
}

func splitLegs(legs []sales.PaymentLeg, saleTotal, amount decimal.Decimal) []LegAmount {
	out := make([]LegAmount, len(legs))
	allocated := decimal.Zero
	for i, leg := range legs {
		share := amount.Sub(allocated)
		if i < len(legs)-1 {
			share = shared.Prorate(amount, leg.Amount, saleTotal)
			allocated = allocated.Add(share)
		}
		out[i] = LegAmount{Method: leg.Method, Amount: share}
	}
	return out
}

// GroupTotals returns the refunded total of every earlier partial refund
// group, oldest first.
func GroupTotals(prior []sales.ItemRefund) []decimal.Decimal {
	var (
		order  []uuid.UUID
		totals = make(map[uuid.UUID]decimal.Decimal)
	)
	for _, r := range prior {
		t, ok := totals[r.RefundGroup]
		if !ok {
			order = append(order, r.RefundGroup)
		}
		totals[r.RefundGroup] = t.Add(r.Total())
	}
	out := make([]decimal.Decimal, len(order))
	for i, g := range order {
		out[i] = totals[g]
	}
	return out
}
