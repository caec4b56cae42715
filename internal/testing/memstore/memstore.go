// Package memstore is an in-memory store.Runner for service and end-to-end
// tests. Transactions are serialised by one mutex and roll back by restoring
// a snapshot taken when they began.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	_ "github.com/DocMeNN/DocMeNN-sub000/internal/testing/guard"
)

type mappingKey struct {
	chartID int64
	code    accounts.Code
}

type state struct {
	nextID      int64
	charts      map[int64]accounts.Chart
	accounts    map[int64]accounts.Account
	mappings    map[mappingKey]string
	entries     []journals.Entry
	closes      []periods.Close
	batches     map[int64]inventory.Batch
	movements   []inventory.Movement
	carts       map[int64]sales.Cart
	sales       map[int64]sales.Sale
	itemRefunds []sales.ItemRefund
	audits      map[int64]sales.RefundAudit
}

func newState() *state {
	return &state{
		charts:   make(map[int64]accounts.Chart),
		accounts: make(map[int64]accounts.Account),
		mappings: make(map[mappingKey]string),
		batches:  make(map[int64]inventory.Batch),
		carts:    make(map[int64]sales.Cart),
		sales:    make(map[int64]sales.Sale),
		audits:   make(map[int64]sales.RefundAudit),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// clone copies every table. Rows are values; slices held inside rows are
// replaced, never appended to in place, so sharing them is safe.
func (s *state) clone() *state {
	c := &state{
		nextID:      s.nextID,
		charts:      copyMap(s.charts),
		accounts:    copyMap(s.accounts),
		mappings:    copyMap(s.mappings),
		entries:     append([]journals.Entry(nil), s.entries...),
		closes:      append([]periods.Close(nil), s.closes...),
		batches:     copyMap(s.batches),
		movements:   append([]inventory.Movement(nil), s.movements...),
		carts:       copyMap(s.carts),
		sales:       copyMap(s.sales),
		itemRefunds: append([]sales.ItemRefund(nil), s.itemRefunds...),
		audits:      copyMap(s.audits),
	}
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DB is the in-memory database.
type DB struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty database.
func New() *DB {
	return &DB{st: newState(), now: time.Now}
}

// WithNow sets the clock used for created_at columns.
func (d *DB) WithNow(now func() time.Time) {
	d.now = now
}

var _ store.Runner = (*DB)(nil)

// WithTx runs fn exclusively and restores the snapshot when fn fails.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.st.clone()
	if err := fn(ctx, &tx{d: d}); err != nil {
		d.st = snapshot
		return err
	}
	return nil
}

// View runs fn against the current state without transaction semantics.
func (d *DB) View(fn func(tx store.Tx)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&tx{d: d})
}

type tx struct {
	d *DB
}

func (t *tx) Accounts() accounts.Store { return accountStore{t.d} }
func (t *tx) Journals() journals.Store { return journalStore{t.d} }
func (t *tx) Periods() periods.Store   { return periodStore{t.d} }
func (t *tx) Stock() inventory.Store   { return stockStore{t.d} }
func (t *tx) Sales() sales.Store       { return saleStore{t.d} }
func (t *tx) Ledger() reports.Store    { return ledgerStore{t.d} }

// Entries returns every journal entry in posting order.
func (d *DB) Entries() []journals.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]journals.Entry(nil), d.st.entries...)
}

// Movements returns every stock movement in insertion order.
func (d *DB) Movements() []inventory.Movement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]inventory.Movement(nil), d.st.movements...)
}

// Batch returns a batch by id.
func (d *DB) Batch(id int64) inventory.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.batches[id]
}

// SaleRecord returns a sale by id.
func (d *DB) SaleRecord(id int64) sales.Sale {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.sales[id]
}

// ItemRefundRows returns every partial refund row.
func (d *DB) ItemRefundRows() []sales.ItemRefund {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sales.ItemRefund(nil), d.st.itemRefunds...)
}

// Closes returns every period close.
func (d *DB) Closes() []periods.Close {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]periods.Close(nil), d.st.closes...)
}
