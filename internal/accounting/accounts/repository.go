package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Store persists charts, accounts and semantic code mappings.
type Store interface {
	ActiveChart(ctx context.Context) (Chart, error)
	ChartByID(ctx context.Context, id int64) (Chart, error)
	// ChartForShare reads the chart row under a share lock so a concurrent
	// activation waits for the reading transaction.
	ChartForShare(ctx context.Context, id int64) (Chart, error)
	ListCharts(ctx context.Context) ([]Chart, error)
	CreateChart(ctx context.Context, name string) (Chart, error)
	ActivateChart(ctx context.Context, id int64) error
	CreateAccount(ctx context.Context, account Account) (Account, error)
	AccountByCode(ctx context.Context, chartID int64, code string) (Account, error)
	AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error)
	ListAccounts(ctx context.Context, chartID int64) ([]Account, error)
	MappedCode(ctx context.Context, chartID int64, code Code) (string, error)
	MapCode(ctx context.Context, chartID int64, code Code, accountCode string) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewStore constructs a PGStore over a pool or transaction.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const chartColumns = `id, name, is_active, created_at`

func scanChart(row pgx.Row) (Chart, error) {
	var c Chart
	if err := row.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chart{}, shared.ErrNotFound
		}
		return Chart{}, err
	}
	return c, nil
}

func (s *PGStore) ActiveChart(ctx context.Context) (Chart, error) {
	return scanChart(s.q.QueryRow(ctx, `SELECT `+chartColumns+` FROM charts WHERE is_active`))
}

func (s *PGStore) ChartByID(ctx context.Context, id int64) (Chart, error) {
	return scanChart(s.q.QueryRow(ctx, `SELECT `+chartColumns+` FROM charts WHERE id=$1`, id))
}

func (s *PGStore) ChartForShare(ctx context.Context, id int64) (Chart, error) {
	return scanChart(s.q.QueryRow(ctx, `SELECT `+chartColumns+` FROM charts WHERE id=$1 FOR SHARE`, id))
}

func (s *PGStore) ListCharts(ctx context.Context) ([]Chart, error) {
	rows, err := s.q.Query(ctx, `SELECT `+chartColumns+` FROM charts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chart
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateChart(ctx context.Context, name string) (Chart, error) {
	return scanChart(s.q.QueryRow(ctx, `INSERT INTO charts (name) VALUES ($1) RETURNING `+chartColumns, name))
}

func (s *PGStore) ActivateChart(ctx context.Context, id int64) error {
	if _, err := s.q.Exec(ctx, `UPDATE charts SET is_active=FALSE WHERE is_active AND id<>$1`, id); err != nil {
		return fmt.Errorf("accounts: deactivate charts: %w", err)
	}
	tag, err := s.q.Exec(ctx, `UPDATE charts SET is_active=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("accounts: activate chart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const accountColumns = `id, chart_id, code, name, type, is_active, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.ChartID, &a.Code, &a.Name, &a.Type, &a.Active, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PGStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	row := s.q.QueryRow(ctx, `INSERT INTO accounts (chart_id, code, name, type, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+accountColumns, account.ChartID, account.Code, account.Name, account.Type, account.Active)
	created, err := scanAccount(row)
	if err != nil {
		if name, code, ok := db.Constraint(err); ok && code == db.CodeUniqueViolation && name == "uq_accounts_chart_code" {
			return Account{}, shared.Invalid("code", "account code %s already exists in chart %d", account.Code, account.ChartID)
		}
		return Account{}, err
	}
	return created, nil
}

func (s *PGStore) AccountByCode(ctx context.Context, chartID int64, code string) (Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE chart_id=$1 AND code=$2`, chartID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

func (s *PGStore) AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.listAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
}

func (s *PGStore) ListAccounts(ctx context.Context, chartID int64) ([]Account, error) {
	return s.listAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE chart_id=$1 ORDER BY code`, chartID)
}

func (s *PGStore) listAccounts(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) MappedCode(ctx context.Context, chartID int64, code Code) (string, error) {
	var accountCode string
	err := s.q.QueryRow(ctx, `SELECT account_code FROM account_mappings WHERE chart_id=$1 AND semantic_code=$2`, chartID, string(code)).Scan(&accountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return accountCode, nil
}

func (s *PGStore) MapCode(ctx context.Context, chartID int64, code Code, accountCode string) error {
	_, err := s.q.Exec(ctx, `INSERT INTO account_mappings (chart_id, semantic_code, account_code) VALUES ($1,$2,$3)
ON CONFLICT (chart_id, semantic_code) DO UPDATE SET account_code=EXCLUDED.account_code, updated_at=NOW()`, chartID, string(code), accountCode)
	return err
}
