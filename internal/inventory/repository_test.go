package inventory

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

var batchRowColumns = []string{
	"id", "product_id", "store_id", "batch_number", "expires_on", "received_qty",
	"remaining", "unit_cost", "received_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestLockCandidatesStoreScope(t *testing.T) {
	mock := newMock(t)
	asOf := time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	store := int64(2)

	rows := pgxmock.NewRows(batchRowColumns).
		AddRow(int64(3), int64(7), &store, "B3", &expires, dec("5"), dec("4"), cost("2.50"), today).
		AddRow(int64(9), int64(7), &store, "B9", nil, dec("2"), dec("2"), cost("2.75"), today)
	mock.ExpectQuery(`^SELECT id, product_id, store_id, batch_number, expires_on, received_qty, remaining_qty AS remaining, unit_cost, received_at FROM stock_batches `+
		`WHERE product_id = \$1 AND remaining_qty > \$2 AND \(expires_on IS NULL OR expires_on >= \$3\) AND store_id = \$4 `+
		`ORDER BY id ASC FOR UPDATE$`).
		WithArgs(int64(7), 0, cutoff, int64(2)).
		WillReturnRows(rows)

	batches, err := NewStore(mock).LockCandidates(ctx, CandidateQuery{ProductID: 7, Scope: ScopeStore, StoreID: 2, AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, int64(3), batches[0].ID)
	require.Equal(t, "4", batches[0].Remaining.String())
	require.True(t, batches[0].ExpiresOn.Equal(expires))
	require.Nil(t, batches[1].ExpiresOn)
	require.Equal(t, "2.75", batches[1].UnitCost.Decimal.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCandidatesUnscopedAndAny(t *testing.T) {
	mock := newMock(t)
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`AND \(expires_on IS NULL OR expires_on >= \$3\) AND store_id IS NULL ORDER BY id ASC FOR UPDATE$`).
		WithArgs(int64(7), 0, cutoff).
		WillReturnRows(pgxmock.NewRows(batchRowColumns))
	mock.ExpectQuery(`AND \(expires_on IS NULL OR expires_on >= \$3\) ORDER BY id ASC FOR UPDATE$`).
		WithArgs(int64(7), 0, cutoff).
		WillReturnRows(pgxmock.NewRows(batchRowColumns))

	st := NewStore(mock)
	got, err := st.LockCandidates(ctx, CandidateQuery{ProductID: 7, Scope: ScopeUnscoped, AsOf: today})
	require.NoError(t, err)
	require.Empty(t, got)
	_, err = st.LockCandidates(ctx, CandidateQuery{ProductID: 7, Scope: ScopeAny, AsOf: today})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineFallsBackToUnscopedBatchesInSQL(t *testing.T) {
	mock := newMock(t)
	store := int64(2)
	expires := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`AND store_id = \$4 ORDER BY id ASC FOR UPDATE$`).
		WithArgs(int64(7), 0, pgxmock.AnyArg(), int64(2)).
		WillReturnRows(pgxmock.NewRows(batchRowColumns))
	mock.ExpectQuery(`AND store_id IS NULL ORDER BY id ASC FOR UPDATE$`).
		WithArgs(int64(7), 0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(batchRowColumns).
			AddRow(int64(4), int64(7), nil, "LATE", nil, dec("5"), dec("5"), cost("1.00"), today).
			AddRow(int64(6), int64(7), nil, "SOON", &expires, dec("5"), dec("5"), cost("1.00"), today))

	available, err := NewEngine(Options{StoreScoped: true}, nil).Available(ctx, NewStore(mock), 7, &store, today)
	require.NoError(t, err)
	require.Equal(t, "10", available.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpiredBatchesCutoff(t *testing.T) {
	mock := newMock(t)
	asOf := time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM stock_batches WHERE remaining_qty > \$1 AND expires_on < \$2 ORDER BY expires_on, id$`).
		WithArgs(0, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(pgxmock.NewRows(batchRowColumns))

	_, err := NewStore(mock).ExpiredBatches(ctx, asOf)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMovementKeepsCreatedAt(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	saleID, itemID := int64(11), int64(110)
	m := Movement{
		BatchID: 3, ProductID: 7, Direction: DirectionOut, Reason: ReasonSale,
		Quantity: dec("2"), UnitCost: dec("2.50"), SaleID: &saleID, SaleItemID: &itemID,
		Reference: "sale:11", CreatedAt: at,
	}
	mock.ExpectQuery(`INSERT INTO stock_movements .*created_at\)\s+VALUES .*COALESCE\(\$11::timestamptz, NOW\(\)\)\) RETURNING id, created_at`).
		WithArgs(int64(3), int64(7), (*int64)(nil), DirectionOut, ReasonSale, dec("2"), dec("2.50"), &saleID, &itemID, "sale:11", &at).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(40), at))

	out, err := NewStore(mock).InsertMovement(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(40), out.ID)
	require.True(t, out.CreatedAt.Equal(at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMovementWithoutTimeUsesDatabaseClock(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO stock_movements`).
		WithArgs(int64(3), int64(7), (*int64)(nil), DirectionIn, ReasonReceipt, dec("1"), decimal.Zero, (*int64)(nil), (*int64)(nil), "r", (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(41), now))

	out, err := NewStore(mock).InsertMovement(ctx, Movement{
		BatchID: 3, ProductID: 7, Direction: DirectionIn, Reason: ReasonReceipt, Quantity: dec("1"), UnitCost: decimal.Zero, Reference: "r",
	})
	require.NoError(t, err)
	require.True(t, out.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaleMovementsOrderedByID(t *testing.T) {
	mock := newMock(t)
	saleID := int64(11)
	mock.ExpectQuery(`FROM stock_movements WHERE sale_id = \$1 ORDER BY id ASC$`).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "batch_id", "product_id", "store_id", "direction", "reason", "quantity",
			"unit_cost", "sale_id", "sale_item_id", "reference", "created_at",
		}).AddRow(int64(1), int64(3), int64(7), nil, DirectionOut, ReasonSale, dec("2"), dec("2.50"), &saleID, nil, "sale:11", today))

	moves, err := NewStore(mock).SaleMovements(ctx, 11)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	require.Equal(t, DirectionOut, moves[0].Direction)
	require.Equal(t, int64(11), *moves[0].SaleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchMapsDuplicateNumber(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO stock_batches`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_stock_batches_number"})

	_, err := NewStore(mock).InsertBatch(ctx, Batch{ProductID: 7, BatchNumber: "B1", ReceivedQty: dec("1"), Remaining: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}
