package reports

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
)

// BalanceQuery selects ledger lines of one chart with effective time at or
// before To. With From set, lines before it only feed the opening amount.
type BalanceQuery struct {
	ChartID        int64
	From           *time.Time
	To             time.Time
	ExcludeSources []string
}

// Store reads aggregated ledger balances.
type Store interface {
	Balances(ctx context.Context, q BalanceQuery) ([]AccountBalance, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q  db.Querier
	sb sq.StatementBuilderType
}

// NewStore constructs a PGStore over a pool or transaction.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (s *PGStore) Balances(ctx context.Context, q BalanceQuery) ([]AccountBalance, error) {
	query := s.sb.Select("a.id AS account_id", "a.code", "a.name", "a.type")
	if q.From != nil {
		query = query.
			Column(sq.Expr("COALESCE(SUM(CASE WHEN e.effective_at < ? THEN l.debit - l.credit ELSE 0 END), 0) AS opening", *q.From)).
			Column(sq.Expr("COALESCE(SUM(CASE WHEN e.effective_at >= ? THEN l.debit ELSE 0 END), 0) AS debit", *q.From)).
			Column(sq.Expr("COALESCE(SUM(CASE WHEN e.effective_at >= ? THEN l.credit ELSE 0 END), 0) AS credit", *q.From))
	} else {
		query = query.Columns("0::numeric AS opening", "COALESCE(SUM(l.debit), 0) AS debit", "COALESCE(SUM(l.credit), 0) AS credit")
	}
	query = query.From("accounts a").
		Join("ledger_lines l ON l.account_id = a.id").
		Join("journal_entries e ON e.id = l.entry_id").
		Where(sq.Eq{"a.chart_id": q.ChartID}).
		Where(sq.LtOrEq{"e.effective_at": q.To})
	if len(q.ExcludeSources) > 0 {
		query = query.Where(sq.NotEq{"e.source": q.ExcludeSources})
	}
	query = query.GroupBy("a.id", "a.code", "a.name", "a.type").OrderBy("a.code")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	var out []AccountBalance
	if err := pgxscan.Select(ctx, s.q, &out, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("reports: balances: %w", err)
	}
	return out, nil
}
