package periods

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
)

// Store persists period closes.
type Store interface {
	// Locked reports whether any close of chartID covers day.
	Locked(ctx context.Context, chartID int64, day time.Time) (bool, error)
	Overlapping(ctx context.Context, chartID int64, start, end time.Time) ([]Close, error)
	InsertClose(ctx context.Context, c Close) (Close, error)
	ListCloses(ctx context.Context, chartID int64) ([]Close, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewStore constructs a PGStore.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) Locked(ctx context.Context, chartID int64, day time.Time) (bool, error) {
	var locked bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM period_closes WHERE chart_id=$1 AND start_date <= $2 AND end_date >= $2)`,
		chartID, Day(day)).Scan(&locked)
	return locked, err
}

const closeColumns = `id, chart_id, start_date, end_date, entry_id, COALESCE(closed_by, 0), created_at`

func (s *PGStore) Overlapping(ctx context.Context, chartID int64, start, end time.Time) ([]Close, error) {
	return s.list(ctx, `SELECT `+closeColumns+` FROM period_closes
WHERE chart_id=$1 AND start_date <= $3 AND end_date >= $2 ORDER BY start_date`, chartID, Day(start), Day(end))
}

func (s *PGStore) ListCloses(ctx context.Context, chartID int64) ([]Close, error) {
	return s.list(ctx, `SELECT `+closeColumns+` FROM period_closes WHERE chart_id=$1 ORDER BY start_date`, chartID)
}

func (s *PGStore) InsertClose(ctx context.Context, c Close) (Close, error) {
	row := s.q.QueryRow(ctx, `INSERT INTO period_closes (chart_id, start_date, end_date, entry_id, closed_by)
VALUES ($1,$2,$3,$4,NULLIF($5,0)) RETURNING `+closeColumns, c.ChartID, Day(c.Start), Day(c.End), c.EntryID, c.ClosedBy)
	created, err := scanClose(row)
	if err != nil {
		if name, code, ok := db.Constraint(err); ok && code == db.CodeExclusionViolation && name == "ex_period_closes_overlap" {
			return Close{}, ErrPeriodOverlap
		}
		return Close{}, err
	}
	return created, nil
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]Close, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Close
	for rows.Next() {
		c, err := scanClose(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClose(row pgx.Row) (Close, error) {
	var c Close
	if err := row.Scan(&c.ID, &c.ChartID, &c.Start, &c.End, &c.EntryID, &c.ClosedBy, &c.CreatedAt); err != nil {
		return Close{}, err
	}
	return c, nil
}
