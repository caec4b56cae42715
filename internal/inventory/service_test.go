package inventory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

type memoryStore struct {
	batches   map[int64]*Batch
	movements []Movement
	nextID    int64
	locked    []int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{batches: make(map[int64]*Batch)}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) LockCandidates(_ context.Context, q CandidateQuery) ([]Batch, error) {
	var out []Batch
	for _, b := range s.batches {
		if b.ProductID != q.ProductID || !b.Remaining.IsPositive() || b.ExpiredAt(q.AsOf) {
			continue
		}
		switch q.Scope {
		case ScopeStore:
			if b.StoreID == nil || *b.StoreID != q.StoreID {
				continue
			}
		case ScopeUnscoped:
			if b.StoreID != nil {
				continue
			}
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, b := range out {
		s.locked = append(s.locked, b.ID)
	}
	return out, nil
}

func (s *memoryStore) LockBatch(_ context.Context, id int64) (Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	s.locked = append(s.locked, id)
	return *b, nil
}

func (s *memoryStore) SetRemaining(_ context.Context, id int64, remaining decimal.Decimal) error {
	s.batches[id].Remaining = remaining
	return nil
}

func (s *memoryStore) SetUnitCost(_ context.Context, id int64, cost decimal.Decimal) (bool, error) {
	b := s.batches[id]
	if b.UnitCost.Valid {
		return false, nil
	}
	b.UnitCost = decimal.NewNullDecimal(cost)
	return true, nil
}

func (s *memoryStore) InsertBatch(_ context.Context, b Batch) (Batch, error) {
	b.ID = s.id()
	s.batches[b.ID] = &b
	return b, nil
}

func (s *memoryStore) InsertMovement(_ context.Context, m Movement) (Movement, error) {
	m.ID = s.id()
	s.movements = append(s.movements, m)
	return m, nil
}

func (s *memoryStore) SaleMovements(_ context.Context, saleID int64) ([]Movement, error) {
	var out []Movement
	for _, m := range s.movements {
		if m.SaleID != nil && *m.SaleID == saleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) BatchesMissingCost(context.Context) ([]Batch, error) { return nil, nil }

func (s *memoryStore) ExpiredBatches(context.Context, time.Time) ([]Batch, error) { return nil, nil }

var (
	ctx   = context.Background()
	today = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cost(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func daysFrom(n int) *time.Time {
	t := today.AddDate(0, 0, n)
	return &t
}

func storeID(v int64) *int64 { return &v }

func receive(t *testing.T, e *Engine, st Store, in ReceiveInput) Batch {
	t.Helper()
	if in.ProductID == 0 {
		in.ProductID = 1
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = today.AddDate(0, 0, -30)
	}
	b, _, err := e.Receive(ctx, st, in)
	require.NoError(t, err)
	return b
}

func TestDeductConsumesEarliestExpiryFirst(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b2 := receive(t, e, st, ReceiveInput{BatchNumber: "B2", ExpiresOn: daysFrom(20), Quantity: dec("5"), UnitCost: cost("3.00")})
	b1 := receive(t, e, st, ReceiveInput{BatchNumber: "B1", ExpiresOn: daysFrom(10), Quantity: dec("5"), UnitCost: cost("2.00")})

	moves, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("7"), SaleID: 9, SaleItemID: 90, At: today})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.Equal(t, b1.ID, moves[0].BatchID)
	require.True(t, moves[0].Quantity.Equal(dec("5")))
	require.Equal(t, b2.ID, moves[1].BatchID)
	require.True(t, moves[1].Quantity.Equal(dec("2")))
	require.True(t, st.batches[b1.ID].Remaining.IsZero())
	require.True(t, st.batches[b2.ID].Remaining.Equal(dec("3")))
	require.Equal(t, "16.00", TotalValue(moves).StringFixed(2))
	require.Equal(t, "sale:9", moves[0].Reference)
}

func TestDeductAndRestoreLockBatchesInIDOrder(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	late := receive(t, e, st, ReceiveInput{BatchNumber: "LATE", ExpiresOn: daysFrom(30), Quantity: dec("2"), UnitCost: cost("1.00")})
	mid := receive(t, e, st, ReceiveInput{BatchNumber: "MID", ExpiresOn: daysFrom(20), Quantity: dec("2"), UnitCost: cost("1.00")})
	early := receive(t, e, st, ReceiveInput{BatchNumber: "EARLY", ExpiresOn: daysFrom(10), Quantity: dec("2"), UnitCost: cost("1.00")})

	st.locked = nil
	moves, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("5"), SaleID: 4, SaleItemID: 40, At: today})
	require.NoError(t, err)
	require.Equal(t, []int64{late.ID, mid.ID, early.ID}, st.locked)
	require.Equal(t, []int64{early.ID, mid.ID, late.ID}, []int64{moves[0].BatchID, moves[1].BatchID, moves[2].BatchID})

	st.locked = nil
	_, err = e.Restore(ctx, st, RestoreInput{SaleID: 4, At: today})
	require.NoError(t, err)
	require.Equal(t, []int64{late.ID, mid.ID, early.ID}, st.locked)
}

func TestSortFEFO(t *testing.T) {
	received := today.AddDate(0, 0, -5)
	batches := []Batch{
		{ID: 5, ReceivedAt: received},
		{ID: 4, ExpiresOn: daysFrom(3), ReceivedAt: received},
		{ID: 3, ExpiresOn: daysFrom(3), ReceivedAt: received.Add(-time.Hour)},
		{ID: 2, ExpiresOn: daysFrom(1), ReceivedAt: received},
		{ID: 1, ReceivedAt: received},
	}
	SortFEFO(batches)
	ids := make([]int64, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	require.Equal(t, []int64{2, 3, 4, 1, 5}, ids)
}

func TestDeductOrdersUnknownExpiryLastAndSkipsExpired(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	noExpiry := receive(t, e, st, ReceiveInput{BatchNumber: "N", Quantity: dec("5"), UnitCost: cost("1.00")})
	receive(t, e, st, ReceiveInput{BatchNumber: "OLD", ExpiresOn: daysFrom(-1), Quantity: dec("5"), UnitCost: cost("1.00")})
	sameDay := receive(t, e, st, ReceiveInput{BatchNumber: "TODAY", ExpiresOn: daysFrom(0), Quantity: dec("1"), UnitCost: cost("1.00")})

	moves, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("2"), SaleID: 1, SaleItemID: 1, At: today})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.Equal(t, sameDay.ID, moves[0].BatchID)
	require.Equal(t, noExpiry.ID, moves[1].BatchID)
}

func TestDeductInsufficientStockMutatesNothing(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b := receive(t, e, st, ReceiveInput{BatchNumber: "B1", ExpiresOn: daysFrom(5), Quantity: dec("3"), UnitCost: cost("1.00")})
	before := len(st.movements)

	_, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("4"), SaleID: 1, SaleItemID: 1, At: today})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.Available.Equal(dec("3")))
	require.True(t, st.batches[b.ID].Remaining.Equal(dec("3")))
	require.Len(t, st.movements, before)
}

func TestDeductMissingCostFailsBeforeMutation(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	priced := receive(t, e, st, ReceiveInput{BatchNumber: "P", ExpiresOn: daysFrom(1), Quantity: dec("1"), UnitCost: cost("1.00")})
	receive(t, e, st, ReceiveInput{BatchNumber: "U", ExpiresOn: daysFrom(2), Quantity: dec("5")})

	_, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("2"), SaleID: 1, SaleItemID: 1, At: today})
	require.ErrorIs(t, err, ErrMissingCost)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, st.batches[priced.ID].Remaining.Equal(dec("1")))
}

func TestStoreScopeFallsBackToUnscoped(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	shared1 := receive(t, e, st, ReceiveInput{BatchNumber: "S", ExpiresOn: daysFrom(1), Quantity: dec("5"), UnitCost: cost("1.00")})
	other := receive(t, e, st, ReceiveInput{BatchNumber: "O", StoreID: storeID(2), ExpiresOn: daysFrom(1), Quantity: dec("5"), UnitCost: cost("1.00")})

	moves, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("1"), StoreID: storeID(1), SaleID: 1, SaleItemID: 1, At: today})
	require.NoError(t, err)
	require.Equal(t, shared1.ID, moves[0].BatchID)

	moves, err = e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("1"), StoreID: storeID(2), SaleID: 2, SaleItemID: 2, At: today})
	require.NoError(t, err)
	require.Equal(t, other.ID, moves[0].BatchID)
}

func TestStoreScopeDisabledIgnoresStore(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: false}, nil)
	receive(t, e, st, ReceiveInput{BatchNumber: "O", StoreID: storeID(2), ExpiresOn: daysFrom(1), Quantity: dec("5"), UnitCost: cost("1.00")})

	avail, err := e.Available(ctx, st, 1, storeID(1), today)
	require.NoError(t, err)
	require.True(t, avail.Equal(dec("5")))
}

func TestRestoreCopiesOriginalCostAndHonoursCeiling(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b1 := receive(t, e, st, ReceiveInput{BatchNumber: "B1", ExpiresOn: daysFrom(10), Quantity: dec("5"), UnitCost: cost("2.00")})
	b2 := receive(t, e, st, ReceiveInput{BatchNumber: "B2", ExpiresOn: daysFrom(20), Quantity: dec("5"), UnitCost: cost("3.00")})
	_, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("7"), SaleID: 9, SaleItemID: 90, At: today})
	require.NoError(t, err)

	// a later cost correction must not leak into the reversal
	st.batches[b2.ID].UnitCost = cost("9.99")

	first, err := e.Restore(ctx, st, RestoreInput{SaleID: 9, Items: []RestoreItem{{SaleItemID: 90, Quantity: dec("3")}}, At: today})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, b2.ID, first[0].BatchID)
	require.True(t, first[0].Quantity.Equal(dec("2")))
	require.True(t, first[0].UnitCost.Equal(dec("3.00")))
	require.Equal(t, b1.ID, first[1].BatchID)
	require.True(t, first[1].Quantity.Equal(dec("1")))

	rest, err := e.Restore(ctx, st, RestoreInput{SaleID: 9, At: today})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.True(t, rest[0].Quantity.Equal(dec("4")))
	require.True(t, st.batches[b1.ID].Remaining.Equal(dec("5")))
	require.True(t, st.batches[b2.ID].Remaining.Equal(dec("5")))

	again, err := e.Restore(ctx, st, RestoreInput{SaleID: 9, At: today})
	require.NoError(t, err)
	require.Empty(t, again)

	_, err = e.Restore(ctx, st, RestoreInput{SaleID: 9, Items: []RestoreItem{{SaleItemID: 90, Quantity: dec("1")}}, At: today})
	require.ErrorIs(t, err, shared.ErrInternalConsistency)
}

func TestRestoreRejectsOverReceived(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b := receive(t, e, st, ReceiveInput{BatchNumber: "B1", Quantity: dec("5"), UnitCost: cost("1.00")})
	_, err := e.Deduct(ctx, st, DeductInput{ProductID: 1, Quantity: dec("2"), SaleID: 3, SaleItemID: 30, At: today})
	require.NoError(t, err)
	// corrupt state: stock put back outside the engine
	st.batches[b.ID].Remaining = dec("4")

	_, err = e.Restore(ctx, st, RestoreInput{SaleID: 3, At: today})
	require.ErrorIs(t, err, shared.ErrInternalConsistency)
}

func TestAdjustAndExpire(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b := receive(t, e, st, ReceiveInput{BatchNumber: "B1", ExpiresOn: daysFrom(-2), Quantity: dec("5"), UnitCost: cost("1.50")})

	m, err := e.Adjust(ctx, st, AdjustInput{BatchID: b.ID, Delta: dec("-2"), At: today})
	require.NoError(t, err)
	require.Equal(t, DirectionOut, m.Direction)
	require.Equal(t, "3.00", m.Value().StringFixed(2))

	_, err = e.Adjust(ctx, st, AdjustInput{BatchID: b.ID, Delta: dec("3"), At: today})
	require.ErrorIs(t, err, shared.ErrValidation)

	m, ok, err := e.Expire(ctx, st, b.ID, today, "stock_expiry:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, m.Quantity.Equal(dec("3")))
	require.True(t, st.batches[b.ID].Remaining.IsZero())

	_, ok, err = e.Expire(ctx, st, b.ID, today, "stock_expiry:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackfillCostOnlyFillsUnknown(t *testing.T) {
	st := newMemoryStore()
	e := NewEngine(Options{StoreScoped: true}, nil)
	b := receive(t, e, st, ReceiveInput{BatchNumber: "U", Quantity: dec("5")})

	ok, err := e.BackfillCost(ctx, st, b.ID, dec("2.50"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.BackfillCost(ctx, st, b.ID, dec("7.00"))
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, st.batches[b.ID].UnitCost.Decimal.Equal(dec("2.50")))
}
