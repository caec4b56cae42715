package inventory

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Direction of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Reason classifies a stock movement.
type Reason string

const (
	ReasonReceipt    Reason = "RECEIPT"
	ReasonSale       Reason = "SALE"
	ReasonRefund     Reason = "REFUND"
	ReasonAdjustment Reason = "ADJUSTMENT"
	ReasonExpiry     Reason = "EXPIRY"
)

// Batch is one delivery of a product. ReceivedQty never changes; Remaining is
// mutated by the engine only, always under a row lock.
type Batch struct {
	ID          int64
	ProductID   int64
	StoreID     *int64
	BatchNumber string
	ExpiresOn   *time.Time
	ReceivedQty decimal.Decimal
	Remaining   decimal.Decimal
	UnitCost    decimal.NullDecimal
	ReceivedAt  time.Time
}

// ExpiredAt reports whether the batch is past its expiry on the calendar
// date of asOf. A batch expiring on that date is still sellable.
func (b Batch) ExpiredAt(asOf time.Time) bool {
	if b.ExpiresOn == nil {
		return false
	}
	return day(*b.ExpiresOn).Before(day(asOf))
}

// SortFEFO orders batches for consumption: earliest expiry first with
// unknown expiry last, then receipt time, then id.
func SortFEFO(batches []Batch) {
	slices.SortStableFunc(batches, compareFEFO)
}

func compareFEFO(a, b Batch) int {
	switch {
	case a.ExpiresOn != nil && b.ExpiresOn == nil:
		return -1
	case a.ExpiresOn == nil && b.ExpiresOn != nil:
		return 1
	case a.ExpiresOn != nil:
		if c := day(*a.ExpiresOn).Compare(day(*b.ExpiresOn)); c != 0 {
			return c
		}
	}
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Movement is an append-only stock event with its cost snapshot.
type Movement struct {
	ID         int64
	BatchID    int64
	ProductID  int64
	StoreID    *int64
	Direction  Direction
	Reason     Reason
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	SaleID     *int64
	SaleItemID *int64
	Reference  string
	CreatedAt  time.Time
}

// Value is the monetary value of the movement at its cost snapshot.
func (m Movement) Value() decimal.Decimal {
	return shared.Monetary(m.Quantity, m.UnitCost)
}

// TotalValue sums the monetary value of movements.
func TotalValue(movements []Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Value())
	}
	return total
}

// ErrMissingCost indicates a batch without a unit cost was about to be costed.
var ErrMissingCost = errors.New("inventory: batch has no unit cost")

// MissingCostError names the batch whose cost is unknown. It is a validation
// failure: the cost must be backfilled before the batch can move.
type MissingCostError struct {
	BatchID   int64
	ProductID int64
}

func (e *MissingCostError) Error() string {
	return fmt.Sprintf("inventory: batch %d of product %d has no unit cost", e.BatchID, e.ProductID)
}

// Is matches ErrMissingCost and shared.ErrValidation.
func (e *MissingCostError) Is(target error) bool {
	return target == ErrMissingCost || target == shared.ErrValidation
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func int64Ptr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
