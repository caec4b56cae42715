package journals

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func draftFor(t *testing.T, ref *Reference) Draft {
	t.Helper()
	d, err := PostingInput{
		ChartID:     1,
		Description: "sale",
		Lines:       []LineInput{Debit(10, amount("25"), "cash"), Credit(20, amount("25"), "revenue")},
		Reference:   ref,
		EffectiveAt: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}.Build(time.Now())
	require.NoError(t, err)
	return d
}

func TestInsertEntryWritesHeaderAndLines(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2025, 1, 2, 10, 0, 1, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO journal_entries`).
		WithArgs(int64(1), "sale", "sale:9", "sale", pgxmock.AnyArg(), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), created))
	mock.ExpectQuery(`INSERT INTO ledger_lines`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO ledger_lines`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))

	entry, err := NewStore(mock).InsertEntry(context.Background(), draftFor(t, NewReference("sale", 9)))
	require.NoError(t, err)
	require.Equal(t, int64(77), entry.ID)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(77), entry.Lines[1].EntryID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEntryMapsReferenceConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO journal_entries`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: referenceConstraint})

	_, err = NewStore(mock).InsertEntry(context.Background(), draftFor(t, NewReference("sale", 9)))
	require.ErrorIs(t, err, shared.ErrDuplicateReference)
	var dup *shared.DuplicateReferenceError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "sale:9", dup.Reference)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryByReferenceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM journal_entries WHERE reference`).
		WithArgs("sale:404").
		WillReturnRows(pgxmock.NewRows([]string{"id", "chart_id", "description", "reference", "source", "effective_at", "posted_by", "created_at"}))

	_, err = NewStore(mock).EntryByReference(context.Background(), "sale:404")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
