package inventory

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Scope selects which store_id values a candidate query matches.
type Scope int

const (
	// ScopeAny ignores store_id.
	ScopeAny Scope = iota
	// ScopeStore matches store_id = StoreID.
	ScopeStore
	// ScopeUnscoped matches store_id IS NULL.
	ScopeUnscoped
)

// CandidateQuery selects sellable batches of one product.
type CandidateQuery struct {
	ProductID int64
	Scope     Scope
	StoreID   int64
	AsOf      time.Time
}

// Store persists batches and movements. Lock* methods take row locks that
// are held until the enclosing transaction ends.
type Store interface {
	// LockCandidates returns batches with remaining stock not expired at
	// AsOf, locked in id order. Batch locks are always taken in id order so
	// sales and refunds on one product cannot deadlock; callers apply
	// SortFEFO themselves.
	LockCandidates(ctx context.Context, q CandidateQuery) ([]Batch, error)
	LockBatch(ctx context.Context, id int64) (Batch, error)
	SetRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error
	// SetUnitCost sets the cost only when it is still unknown.
	SetUnitCost(ctx context.Context, batchID int64, cost decimal.Decimal) (bool, error)
	InsertBatch(ctx context.Context, b Batch) (Batch, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	SaleMovements(ctx context.Context, saleID int64) ([]Movement, error)
	BatchesMissingCost(ctx context.Context) ([]Batch, error)
	// ExpiredBatches lists, without locking, batches with stock left that
	// expired before asOf.
	ExpiredBatches(ctx context.Context, asOf time.Time) ([]Batch, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q  db.Querier
	sb sq.StatementBuilderType
}

// NewStore constructs a PGStore.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

var batchColumns = []string{
	"id", "product_id", "store_id", "batch_number", "expires_on", "received_qty",
	"remaining_qty AS remaining", "unit_cost", "received_at",
}

var movementColumns = []string{
	"id", "batch_id", "product_id", "store_id", "direction", "reason", "quantity",
	"unit_cost", "sale_id", "sale_item_id", "reference", "created_at",
}

func (s *PGStore) LockCandidates(ctx context.Context, q CandidateQuery) ([]Batch, error) {
	query := s.sb.Select(batchColumns...).From("stock_batches").
		Where(sq.Eq{"product_id": q.ProductID}).
		Where(sq.Gt{"remaining_qty": 0}).
		Where(sq.Or{sq.Eq{"expires_on": nil}, sq.GtOrEq{"expires_on": day(q.AsOf)}})
	switch q.Scope {
	case ScopeStore:
		query = query.Where(sq.Eq{"store_id": q.StoreID})
	case ScopeUnscoped:
		query = query.Where(sq.Eq{"store_id": nil})
	}
	query = query.OrderBy("id ASC").Suffix("FOR UPDATE")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	var batches []Batch
	if err := pgxscan.Select(ctx, s.q, &batches, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("inventory: lock candidates: %w", err)
	}
	return batches, nil
}

func (s *PGStore) LockBatch(ctx context.Context, id int64) (Batch, error) {
	sqlStr, args, err := s.sb.Select(batchColumns...).From("stock_batches").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return Batch{}, err
	}
	var b Batch
	if err := pgxscan.Get(ctx, s.q, &b, sqlStr, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Batch{}, shared.ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (s *PGStore) SetRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `UPDATE stock_batches SET remaining_qty=$2 WHERE id=$1`, batchID, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *PGStore) SetUnitCost(ctx context.Context, batchID int64, cost decimal.Decimal) (bool, error) {
	tag, err := s.q.Exec(ctx, `UPDATE stock_batches SET unit_cost=$2 WHERE id=$1 AND unit_cost IS NULL`, batchID, cost)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	row := s.q.QueryRow(ctx, `INSERT INTO stock_batches (product_id, store_id, batch_number, expires_on, received_qty, remaining_qty, unit_cost, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		b.ProductID, b.StoreID, b.BatchNumber, b.ExpiresOn, b.ReceivedQty, b.Remaining, b.UnitCost, b.ReceivedAt)
	if err := row.Scan(&b.ID); err != nil {
		if name, code, ok := db.Constraint(err); ok && code == db.CodeUniqueViolation && name == "uq_stock_batches_number" {
			return Batch{}, shared.Invalid("batch_number", "batch %s already received for product %d", b.BatchNumber, b.ProductID)
		}
		return Batch{}, err
	}
	return b, nil
}

// InsertMovement records m at m.CreatedAt, or at the database clock when
// it is zero.
func (s *PGStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var createdAt *time.Time
	if !m.CreatedAt.IsZero() {
		at := m.CreatedAt.UTC()
		createdAt = &at
	}
	row := s.q.QueryRow(ctx, `INSERT INTO stock_movements (batch_id, product_id, store_id, direction, reason, quantity, unit_cost, sale_id, sale_item_id, reference, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11::timestamptz, NOW())) RETURNING id, created_at`,
		m.BatchID, m.ProductID, m.StoreID, m.Direction, m.Reason, m.Quantity, m.UnitCost, m.SaleID, m.SaleItemID, m.Reference, createdAt)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (s *PGStore) SaleMovements(ctx context.Context, saleID int64) ([]Movement, error) {
	sqlStr, args, err := s.sb.Select(movementColumns...).From("stock_movements").
		Where(sq.Eq{"sale_id": saleID}).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Movement
	if err := pgxscan.Select(ctx, s.q, &out, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("inventory: sale movements: %w", err)
	}
	return out, nil
}

func (s *PGStore) BatchesMissingCost(ctx context.Context) ([]Batch, error) {
	return s.selectBatches(ctx, s.sb.Select(batchColumns...).From("stock_batches").
		Where(sq.Eq{"unit_cost": nil}).OrderBy("product_id", "id"))
}

func (s *PGStore) ExpiredBatches(ctx context.Context, asOf time.Time) ([]Batch, error) {
	return s.selectBatches(ctx, s.sb.Select(batchColumns...).From("stock_batches").
		Where(sq.Gt{"remaining_qty": 0}).
		Where(sq.Lt{"expires_on": day(asOf)}).
		OrderBy("expires_on", "id"))
}

func (s *PGStore) selectBatches(ctx context.Context, query sq.SelectBuilder) ([]Batch, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	var out []Batch
	if err := pgxscan.Select(ctx, s.q, &out, sqlStr, args...); err != nil {
		return nil, err
	}
	return out, nil
}
