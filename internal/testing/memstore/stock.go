package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

type stockStore struct{ d *DB }

func (s stockStore) LockCandidates(_ context.Context, q inventory.CandidateQuery) ([]inventory.Batch, error) {
	var out []inventory.Batch
	for _, b := range s.d.st.batches {
		if b.ProductID != q.ProductID || !b.Remaining.IsPositive() || b.ExpiredAt(q.AsOf) {
			continue
		}
		switch q.Scope {
		case inventory.ScopeStore:
			if b.StoreID == nil || *b.StoreID != q.StoreID {
				continue
			}
		case inventory.ScopeUnscoped:
			if b.StoreID != nil {
				continue
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s stockStore) LockBatch(_ context.Context, id int64) (inventory.Batch, error) {
	b, ok := s.d.st.batches[id]
	if !ok {
		return inventory.Batch{}, shared.ErrNotFound
	}
	return b, nil
}

func (s stockStore) SetRemaining(_ context.Context, batchID int64, remaining decimal.Decimal) error {
	b, ok := s.d.st.batches[batchID]
	if !ok {
		return shared.ErrNotFound
	}
	b.Remaining = remaining
	s.d.st.batches[batchID] = b
	return nil
}

func (s stockStore) SetUnitCost(_ context.Context, batchID int64, cost decimal.Decimal) (bool, error) {
	b, ok := s.d.st.batches[batchID]
	if !ok || b.UnitCost.Valid {
		return false, nil
	}
	b.UnitCost = decimal.NewNullDecimal(cost)
	s.d.st.batches[batchID] = b
	return true, nil
}

func (s stockStore) InsertBatch(_ context.Context, b inventory.Batch) (inventory.Batch, error) {
	for _, existing := range s.d.st.batches {
		if existing.ProductID == b.ProductID && existing.BatchNumber == b.BatchNumber && storeKey(existing.StoreID) == storeKey(b.StoreID) {
			return inventory.Batch{}, shared.Invalid("batch_number", "batch %s already received for product %d", b.BatchNumber, b.ProductID)
		}
	}
	b.ID = s.d.st.id()
	s.d.st.batches[b.ID] = b
	return b, nil
}

// storeKey mirrors COALESCE(store_id, 0) in the batch number index.
func storeKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func (s stockStore) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = s.d.st.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.d.now()
	}
	s.d.st.movements = append(s.d.st.movements, m)
	return m, nil
}

func (s stockStore) SaleMovements(_ context.Context, saleID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range s.d.st.movements {
		if m.SaleID != nil && *m.SaleID == saleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s stockStore) BatchesMissingCost(context.Context) ([]inventory.Batch, error) {
	var out []inventory.Batch
	for _, b := range s.d.st.batches {
		if !b.UnitCost.Valid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s stockStore) ExpiredBatches(_ context.Context, asOf time.Time) ([]inventory.Batch, error) {
	var out []inventory.Batch
	for _, b := range s.d.st.batches {
		if b.Remaining.IsPositive() && b.ExpiredAt(asOf) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresOn.Equal(*out[j].ExpiresOn) {
			return out[i].ExpiresOn.Before(*out[j].ExpiresOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// BatchSeed describes a batch placed directly into the store.
type BatchSeed struct {
	ProductID  int64
	StoreID    *int64
	Number     string
	ExpiresOn  *time.Time
	Quantity   decimal.Decimal
	UnitCost   *decimal.Decimal
	ReceivedAt time.Time
}

// SeedBatch inserts a batch without a receipt movement and returns its id.
func (d *DB) SeedBatch(seed BatchSeed) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := inventory.Batch{
		ID:          d.st.id(),
		ProductID:   seed.ProductID,
		StoreID:     seed.StoreID,
		BatchNumber: seed.Number,
		ExpiresOn:   seed.ExpiresOn,
		ReceivedQty: seed.Quantity,
		Remaining:   seed.Quantity,
		ReceivedAt:  seed.ReceivedAt,
	}
	if seed.UnitCost != nil {
		b.UnitCost = decimal.NewNullDecimal(*seed.UnitCost)
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = d.now()
	}
	d.st.batches[b.ID] = b
	return b.ID
}
