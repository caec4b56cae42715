package sales

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// ============================================================================
// CART
// ============================================================================

// Cart is the open basket of a terminal. Lines carry the price, discount and
// tax rate captured when the product was scanned.
type Cart struct {
	ID        int64
	StoreID   *int64
	CashierID int64
	Active    bool
	Lines     []CartLine
}

type CartLine struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal
}

// ============================================================================
// SALE
// ============================================================================

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
	StatusRefunded  Status = "REFUNDED"
)

// Payment methods accepted at checkout.
const (
	MethodCash     = "CASH"
	MethodCard     = "CARD"
	MethodTransfer = "TRANSFER"
	MethodCredit   = "CREDIT"
	MethodSplit    = "SPLIT"
)

// ValidMethod reports whether m can settle a sale or a leg of one.
func ValidMethod(m string) bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodCredit:
		return true
	}
	return false
}

// Sale is the snapshot of a completed transaction. Amounts never change after
// completion; refunds are recorded beside it.
type Sale struct {
	ID             int64
	PublicID       uuid.UUID
	ChartID        int64
	StoreID        *int64
	CartID         *int64
	CashierID      int64
	Status         Status
	PaymentMethod  string
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	COGS           decimal.Decimal
	GrossProfit    decimal.Decimal
	JournalEntryID *int64
	CreatedAt      time.Time
	CompletedAt    *time.Time
	RefundedAt     *time.Time
	Items          []Item
	Legs           []PaymentLeg
}

// Item is one sale line. UnitCost, COGS and GrossProfit are set once the
// line is costed by the stock engine.
type Item struct {
	ID           int64
	SaleID       int64
	ProductID    int64
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	TaxRate      decimal.Decimal
	LineSubtotal decimal.Decimal
	Tax          decimal.Decimal
	UnitCost     decimal.NullDecimal
	COGS         decimal.NullDecimal
	GrossProfit  decimal.NullDecimal
}

// NetRevenue is the line subtotal after discount, before tax.
func (i Item) NetRevenue() decimal.Decimal {
	return i.LineSubtotal.Sub(i.Discount)
}

// Total is the amount the customer paid for the line.
func (i Item) Total() decimal.Decimal {
	return i.NetRevenue().Add(i.Tax)
}

// PaymentLeg is one part of a split payment.
type PaymentLeg struct {
	ID     int64
	SaleID int64
	Method string
	Amount decimal.Decimal
}

// NewItem prices a cart line: subtotal = qty × price, tax applies to the
// subtotal net of discount.
func NewItem(line CartLine) (Item, error) {
	if !line.Quantity.IsPositive() {
		return Item{}, shared.Invalid("quantity", "must be positive for product %d", line.ProductID)
	}
	if line.UnitPrice.IsNegative() || line.Discount.IsNegative() || line.TaxRate.IsNegative() {
		return Item{}, shared.Invalid("price", "negative price, discount or tax rate for product %d", line.ProductID)
	}
	subtotal := shared.Monetary(line.Quantity, line.UnitPrice)
	discount := shared.Round2(line.Discount)
	if discount.GreaterThan(subtotal) {
		return Item{}, shared.Invalid("discount", "discount exceeds subtotal for product %d", line.ProductID)
	}
	return Item{
		ProductID:    line.ProductID,
		Quantity:     line.Quantity,
		UnitPrice:    line.UnitPrice,
		Discount:     discount,
		TaxRate:      line.TaxRate,
		LineSubtotal: subtotal,
		Tax:          shared.Round2(subtotal.Sub(discount).Mul(line.TaxRate)),
	}, nil
}

// ApplyTotals sums item amounts into the sale header.
func (s *Sale) ApplyTotals() {
	s.Subtotal, s.Discount, s.Tax, s.COGS = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, it := range s.Items {
		s.Subtotal = s.Subtotal.Add(it.LineSubtotal)
		s.Discount = s.Discount.Add(it.Discount)
		s.Tax = s.Tax.Add(it.Tax)
		if it.COGS.Valid {
			s.COGS = s.COGS.Add(it.COGS.Decimal)
		}
	}
	s.Total = s.Subtotal.Sub(s.Discount).Add(s.Tax)
	s.GrossProfit = s.Subtotal.Sub(s.Discount).Sub(s.COGS)
}

// SettlementLegs returns the stored split legs, or one leg carrying the
// whole total for a single-method sale.
func (s Sale) SettlementLegs() []PaymentLeg {
	if len(s.Legs) > 0 {
		return s.Legs
	}
	return []PaymentLeg{{SaleID: s.ID, Method: s.PaymentMethod, Amount: s.Total}}
}

// Item returns the sale item with the given id.
func (s Sale) Item(id int64) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// SoldQuantity sums the quantity of all items.
func (s Sale) SoldQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Quantity)
	}
	return total
}

// ============================================================================
// REFUNDS
// ============================================================================

type RefundKind string

const (
	RefundKindFull             RefundKind = "FULL"
	RefundKindPartialCompleted RefundKind = "PARTIAL_COMPLETED"
)

// ItemRefund is an append-only partial refund of one sale item. Rows written
// by one partial refund call share a RefundGroup.
type ItemRefund struct {
	ID          int64
	SaleID      int64
	SaleItemID  int64
	RefundGroup uuid.UUID
	Quantity    decimal.Decimal
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	COGS        decimal.Decimal
	ActorID     int64
	Reason      string
	CreatedAt   time.Time
}

// Total is the amount returned to the customer for the row.
func (r ItemRefund) Total() decimal.Decimal {
	return r.Subtotal.Sub(r.Discount).Add(r.Tax)
}

// RefundAudit is the one-per-sale snapshot written when a sale becomes
// fully refunded.
type RefundAudit struct {
	ID        int64
	SaleID    int64
	Kind      RefundKind
	ActorID   int64
	Reason    string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	COGS      decimal.Decimal
	CreatedAt time.Time
}

var (
	// ErrEmptyCart indicates checkout of an inactive or empty cart.
	ErrEmptyCart error = &shared.ValidationError{Field: "cart", Reason: "cart is inactive or empty"}
	// ErrSplitMismatch indicates split legs not summing to the sale total.
	ErrSplitMismatch error = &shared.ValidationError{Field: "legs", Reason: "split payment legs do not sum to the sale total"}
	// ErrAuditExists indicates the sale already has its refund audit.
	ErrAuditExists = errors.New("sales: refund audit already recorded")
)
