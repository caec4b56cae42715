package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Observer receives the outcome of every deduction.
type Observer interface {
	ObserveDeduction(outcome string, batches int)
}

// Options configures the engine once at startup.
type Options struct {
	// StoreScoped enables store-scoped candidate selection with fallback to
	// unscoped batches. When false, store ids are ignored.
	StoreScoped bool
}

// Engine allocates stock across batches in FEFO order and reverses those
// allocations on refund. It is the only writer of batches and movements.
type Engine struct {
	storeScoped bool
	observer    Observer
	now         func() time.Time
}

// NewEngine builds the costing engine. observer may be nil.
func NewEngine(opts Options, observer Observer) *Engine {
	return &Engine{storeScoped: opts.StoreScoped, observer: observer, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// DeductInput describes stock leaving for a sale item.
type DeductInput struct {
	ProductID  int64
	Quantity   decimal.Decimal
	SaleID     int64
	SaleItemID int64
	StoreID    *int64
	At         time.Time
	Reference  string
}

// Deduct consumes Quantity from eligible batches, earliest expiry first, and
// returns one OUT movement per touched batch. Availability and costs are
// checked against the full candidate set before anything is written.
func (e *Engine) Deduct(ctx context.Context, st Store, in DeductInput) ([]Movement, error) {
	movements, err := e.deduct(ctx, st, in)
	if e.observer != nil {
		e.observer.ObserveDeduction(deductOutcome(err), len(movements))
	}
	return movements, err
}

func (e *Engine) deduct(ctx context.Context, st Store, in DeductInput) ([]Movement, error) {
	if in.ProductID <= 0 {
		return nil, shared.Invalid("product_id", "required")
	}
	if !in.Quantity.IsPositive() {
		return nil, shared.Invalid("quantity", "must be positive")
	}
	at := e.at(in.At)
	candidates, err := e.candidates(ctx, st, in.ProductID, in.StoreID, at)
	if err != nil {
		return nil, err
	}
	available := sumRemaining(candidates)
	if available.LessThan(in.Quantity) {
		return nil, &shared.InsufficientStockError{ProductID: in.ProductID, StoreID: in.StoreID, Requested: in.Quantity, Available: available}
	}

	type allocation struct {
		batch Batch
		qty   decimal.Decimal
	}
	var plan []allocation
	need := in.Quantity
	for _, b := range candidates {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(b.Remaining, need)
		if !b.UnitCost.Valid {
			return nil, &MissingCostError{BatchID: b.ID, ProductID: b.ProductID}
		}
		plan = append(plan, allocation{batch: b, qty: take})
		need = need.Sub(take)
	}

	ref := in.Reference
	if ref == "" && in.SaleID > 0 {
		ref = fmt.Sprintf("sale:%d", in.SaleID)
	}
	movements := make([]Movement, 0, len(plan))
	for _, a := range plan {
		if err := st.SetRemaining(ctx, a.batch.ID, a.batch.Remaining.Sub(a.qty)); err != nil {
			return nil, fmt.Errorf("inventory: update batch %d: %w", a.batch.ID, err)
		}
		m, err := st.InsertMovement(ctx, Movement{
			BatchID:    a.batch.ID,
			ProductID:  a.batch.ProductID,
			StoreID:    a.batch.StoreID,
			Direction:  DirectionOut,
			Reason:     ReasonSale,
			Quantity:   a.qty,
			UnitCost:   a.batch.UnitCost.Decimal,
			SaleID:     int64Ptr(in.SaleID),
			SaleItemID: int64Ptr(in.SaleItemID),
			Reference:  ref,
			CreatedAt:  at,
		})
		if err != nil {
			return nil, fmt.Errorf("inventory: insert movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// Available returns the locked candidate total for a product in scope.
func (e *Engine) Available(ctx context.Context, st Store, productID int64, storeID *int64, at time.Time) (decimal.Decimal, error) {
	candidates, err := e.candidates(ctx, st, productID, storeID, e.at(at))
	if err != nil {
		return decimal.Zero, err
	}
	return sumRemaining(candidates), nil
}

// candidates applies the scope policy and returns the locked batches in
// FEFO order.
func (e *Engine) candidates(ctx context.Context, st Store, productID int64, storeID *int64, at time.Time) ([]Batch, error) {
	batches, err := e.lockCandidates(ctx, st, productID, storeID, at)
	if err != nil {
		return nil, err
	}
	SortFEFO(batches)
	return batches, nil
}

// lockCandidates locks store batches first and unscoped batches only when
// the store has none eligible.
func (e *Engine) lockCandidates(ctx context.Context, st Store, productID int64, storeID *int64, at time.Time) ([]Batch, error) {
	q := CandidateQuery{ProductID: productID, AsOf: at}
	if !e.storeScoped {
		q.Scope = ScopeAny
		return st.LockCandidates(ctx, q)
	}
	if storeID != nil {
		q.Scope, q.StoreID = ScopeStore, *storeID
		scoped, err := st.LockCandidates(ctx, q)
		if err != nil || len(scoped) > 0 {
			return scoped, err
		}
	}
	q.Scope, q.StoreID = ScopeUnscoped, 0
	return st.LockCandidates(ctx, q)
}

// RestoreItem limits a restore to one sale item.
type RestoreItem struct {
	SaleItemID int64
	Quantity   decimal.Decimal
}

// RestoreInput reverses sale deductions. Empty Items restores everything
// still outstanding for the sale.
type RestoreInput struct {
	SaleID    int64
	Items     []RestoreItem
	At        time.Time
	Reference string
}

type ceilingKey struct {
	batchID    int64
	saleItemID int64
}

// Restore returns stock of a sale to the batches it came from, latest
// consumption first. Each IN movement copies the cost snapshot of the OUT
// movement it reverses. A batch never receives back more than the sale took
// from it, and never more than it originally received.
func (e *Engine) Restore(ctx context.Context, st Store, in RestoreInput) ([]Movement, error) {
	if in.SaleID <= 0 {
		return nil, shared.Invalid("sale_id", "required")
	}
	history, err := st.SaleMovements(ctx, in.SaleID)
	if err != nil {
		return nil, err
	}
	outstanding := make(map[ceilingKey]decimal.Decimal)
	var outs []Movement
	for _, m := range history {
		k := ceilingKey{batchID: m.BatchID, saleItemID: deref(m.SaleItemID)}
		switch {
		case m.Direction == DirectionOut && m.Reason == ReasonSale:
			outstanding[k] = outstanding[k].Add(m.Quantity)
			outs = append(outs, m)
		case m.Direction == DirectionIn && m.Reason == ReasonRefund:
			outstanding[k] = outstanding[k].Sub(m.Quantity)
		}
	}

	requested := make(map[int64]decimal.Decimal)
	for _, item := range in.Items {
		if !item.Quantity.IsPositive() {
			return nil, shared.Invalid("quantity", "must be positive for sale item %d", item.SaleItemID)
		}
		requested[item.SaleItemID] = requested[item.SaleItemID].Add(item.Quantity)
	}

	type restoration struct {
		out Movement
		qty decimal.Decimal
	}
	var plan []restoration
	for i := len(outs) - 1; i >= 0; i-- {
		out := outs[i]
		k := ceilingKey{batchID: out.BatchID, saleItemID: deref(out.SaleItemID)}
		qty := decimal.Min(out.Quantity, outstanding[k])
		if len(in.Items) > 0 {
			qty = decimal.Min(qty, requested[k.saleItemID])
		}
		if !qty.IsPositive() {
			continue
		}
		outstanding[k] = outstanding[k].Sub(qty)
		if len(in.Items) > 0 {
			requested[k.saleItemID] = requested[k.saleItemID].Sub(qty)
		}
		plan = append(plan, restoration{out: out, qty: qty})
	}
	for itemID, left := range requested {
		if left.IsPositive() {
			return nil, &shared.InternalConsistencyError{
				Check:  "restore_ceiling",
				Detail: fmt.Sprintf("sale %d item %d: %s exceeds stock taken by the sale", in.SaleID, itemID, left.String()),
			}
		}
	}

	// Lock every touched batch in id order before mutating any of them.
	ids := make([]int64, 0, len(plan))
	seen := make(map[int64]bool)
	for _, r := range plan {
		if !seen[r.out.BatchID] {
			seen[r.out.BatchID] = true
			ids = append(ids, r.out.BatchID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	batches := make(map[int64]Batch, len(ids))
	for _, id := range ids {
		b, err := st.LockBatch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("inventory: lock batch %d: %w", id, err)
		}
		batches[id] = b
	}

	at := e.at(in.At)
	ref := in.Reference
	if ref == "" {
		ref = fmt.Sprintf("sale:%d", in.SaleID)
	}
	movements := make([]Movement, 0, len(plan))
	for _, r := range plan {
		b := batches[r.out.BatchID]
		next := b.Remaining.Add(r.qty)
		if next.GreaterThan(b.ReceivedQty) {
			return nil, &shared.InternalConsistencyError{
				Check:  "batch_received_qty",
				Detail: fmt.Sprintf("batch %d would hold %s of %s received", b.ID, next.String(), b.ReceivedQty.String()),
			}
		}
		if err := st.SetRemaining(ctx, b.ID, next); err != nil {
			return nil, fmt.Errorf("inventory: update batch %d: %w", b.ID, err)
		}
		b.Remaining = next
		batches[b.ID] = b
		m, err := st.InsertMovement(ctx, Movement{
			BatchID:    b.ID,
			ProductID:  r.out.ProductID,
			StoreID:    r.out.StoreID,
			Direction:  DirectionIn,
			Reason:     ReasonRefund,
			Quantity:   r.qty,
			UnitCost:   r.out.UnitCost,
			SaleID:     r.out.SaleID,
			SaleItemID: r.out.SaleItemID,
			Reference:  ref,
			CreatedAt:  at,
		})
		if err != nil {
			return nil, fmt.Errorf("inventory: insert movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// ReceiveInput describes one delivered batch.
type ReceiveInput struct {
	ProductID   int64
	StoreID     *int64
	BatchNumber string
	ExpiresOn   *time.Time
	Quantity    decimal.Decimal
	UnitCost    decimal.NullDecimal
	ReceivedAt  time.Time
	Reference   string
}

// Receive creates a batch and its RECEIPT movement. A batch received without
// a cost records a zero snapshot and must be backfilled before it can move.
func (e *Engine) Receive(ctx context.Context, st Store, in ReceiveInput) (Batch, Movement, error) {
	if in.ProductID <= 0 {
		return Batch{}, Movement{}, shared.Invalid("product_id", "required")
	}
	number := strings.TrimSpace(in.BatchNumber)
	if number == "" {
		return Batch{}, Movement{}, shared.Invalid("batch_number", "required")
	}
	if !in.Quantity.IsPositive() {
		return Batch{}, Movement{}, shared.Invalid("quantity", "must be positive")
	}
	if in.UnitCost.Valid && in.UnitCost.Decimal.IsNegative() {
		return Batch{}, Movement{}, shared.Invalid("unit_cost", "must not be negative")
	}
	at := e.at(in.ReceivedAt)
	b, err := st.InsertBatch(ctx, Batch{
		ProductID:   in.ProductID,
		StoreID:     in.StoreID,
		BatchNumber: number,
		ExpiresOn:   in.ExpiresOn,
		ReceivedQty: in.Quantity,
		Remaining:   in.Quantity,
		UnitCost:    in.UnitCost,
		ReceivedAt:  at,
	})
	if err != nil {
		return Batch{}, Movement{}, err
	}
	m, err := st.InsertMovement(ctx, Movement{
		BatchID:   b.ID,
		ProductID: b.ProductID,
		StoreID:   b.StoreID,
		Direction: DirectionIn,
		Reason:    ReasonReceipt,
		Quantity:  in.Quantity,
		UnitCost:  in.UnitCost.Decimal,
		Reference: in.Reference,
		CreatedAt: at,
	})
	if err != nil {
		return Batch{}, Movement{}, err
	}
	return b, m, nil
}

// AdjustInput corrects the remaining quantity of one batch.
type AdjustInput struct {
	BatchID   int64
	Delta     decimal.Decimal
	Reference string
	At        time.Time
}

// Adjust applies a signed correction, keeping remaining within
// [0, received].
func (e *Engine) Adjust(ctx context.Context, st Store, in AdjustInput) (Movement, error) {
	if in.Delta.IsZero() {
		return Movement{}, shared.Invalid("delta", "must not be zero")
	}
	b, err := st.LockBatch(ctx, in.BatchID)
	if err != nil {
		return Movement{}, err
	}
	if !b.UnitCost.Valid {
		return Movement{}, &MissingCostError{BatchID: b.ID, ProductID: b.ProductID}
	}
	next := b.Remaining.Add(in.Delta)
	if next.IsNegative() || next.GreaterThan(b.ReceivedQty) {
		return Movement{}, shared.Invalid("delta", "batch %d remaining would be %s of %s received", b.ID, next.String(), b.ReceivedQty.String())
	}
	if err := st.SetRemaining(ctx, b.ID, next); err != nil {
		return Movement{}, err
	}
	dir := DirectionIn
	if in.Delta.IsNegative() {
		dir = DirectionOut
	}
	return st.InsertMovement(ctx, Movement{
		BatchID:   b.ID,
		ProductID: b.ProductID,
		StoreID:   b.StoreID,
		Direction: dir,
		Reason:    ReasonAdjustment,
		Quantity:  in.Delta.Abs(),
		UnitCost:  b.UnitCost.Decimal,
		Reference: in.Reference,
		CreatedAt: e.at(in.At),
	})
}

// Expire writes off what is left of a batch that expired before asOf. It
// reports false when the batch has nothing to expire.
func (e *Engine) Expire(ctx context.Context, st Store, batchID int64, asOf time.Time, reference string) (Movement, bool, error) {
	at := e.at(asOf)
	b, err := st.LockBatch(ctx, batchID)
	if err != nil {
		return Movement{}, false, err
	}
	if !b.ExpiredAt(at) || !b.Remaining.IsPositive() {
		return Movement{}, false, nil
	}
	if !b.UnitCost.Valid {
		return Movement{}, false, &MissingCostError{BatchID: b.ID, ProductID: b.ProductID}
	}
	if err := st.SetRemaining(ctx, b.ID, decimal.Zero); err != nil {
		return Movement{}, false, err
	}
	m, err := st.InsertMovement(ctx, Movement{
		BatchID:   b.ID,
		ProductID: b.ProductID,
		StoreID:   b.StoreID,
		Direction: DirectionOut,
		Reason:    ReasonExpiry,
		Quantity:  b.Remaining,
		UnitCost:  b.UnitCost.Decimal,
		Reference: reference,
		CreatedAt: at,
	})
	if err != nil {
		return Movement{}, false, err
	}
	return m, true, nil
}

// BackfillCost sets the unit cost of a batch whose cost is unknown. A batch
// that already has a cost is left untouched and reported as false.
func (e *Engine) BackfillCost(ctx context.Context, st Store, batchID int64, cost decimal.Decimal) (bool, error) {
	if cost.IsNegative() {
		return false, shared.Invalid("unit_cost", "must not be negative")
	}
	if _, err := st.LockBatch(ctx, batchID); err != nil {
		return false, err
	}
	return st.SetUnitCost(ctx, batchID, cost)
}

func (e *Engine) at(t time.Time) time.Time {
	if t.IsZero() {
		return e.now().UTC()
	}
	return t.UTC()
}

func sumRemaining(batches []Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Remaining)
	}
	return total
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func deductOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, ErrMissingCost):
		return "missing_cost"
	default:
		return "error"
	}
}
