// Package store composes the per-domain stores into one unit of work so a
// checkout, refund or close writes the ledger and the stock tables inside a
// single database transaction.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
)

// Tx exposes every domain store bound to one transaction.
type Tx interface {
	Accounts() accounts.Store
	Journals() journals.Store
	Periods() periods.Store
	Stock() inventory.Store
	Sales() sales.Store
	Ledger() reports.Store
}

// Runner executes fn inside a transaction. Any error returned by fn rolls
// back every write made through the Tx.
type Runner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var _ journals.Tx = Tx(nil)

// PG is the PostgreSQL Runner.
type PG struct {
	db db.TxBeginner
}

// NewPG builds a Runner over a pool.
func NewPG(pool db.TxBeginner) *PG {
	return &PG{db: pool}
}

func (r *PG) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
}

// Bind exposes the domain stores over q without opening a transaction. Used
// for read paths that run on the pool.
func Bind(q db.Querier) Tx {
	return bind(q)
}

func bind(q db.Querier) *pgTx {
	return &pgTx{
		accounts: accounts.NewStore(q),
		journals: journals.NewStore(q),
		periods:  periods.NewStore(q),
		stock:    inventory.NewStore(q),
		sales:    sales.NewStore(q),
		ledger:   reports.NewStore(q),
	}
}

type pgTx struct {
	accounts *accounts.PGStore
	journals *journals.PGStore
	periods  *periods.PGStore
	stock    *inventory.PGStore
	sales    *sales.PGStore
	ledger   *reports.PGStore
}

func (t *pgTx) Accounts() accounts.Store { return t.accounts }
func (t *pgTx) Journals() journals.Store { return t.journals }
func (t *pgTx) Periods() periods.Store   { return t.periods }
func (t *pgTx) Stock() inventory.Store   { return t.stock }
func (t *pgTx) Sales() sales.Store       { return t.sales }
func (t *pgTx) Ledger() reports.Store    { return t.ledger }
