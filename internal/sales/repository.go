package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Store persists carts, sales and refund records.
type Store interface {
	CreateCart(ctx context.Context, cart Cart) (Cart, error)
	// LockCart returns the cart with its lines, locked for update.
	LockCart(ctx context.Context, id int64) (Cart, error)
	// CloseCart deactivates the cart and deletes its lines.
	CloseCart(ctx context.Context, id int64) error

	// InsertSale writes a draft sale with its items and returns it with ids.
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	// CompleteSale stores totals, item costing, payment legs and the journal
	// link, and moves the sale to its completed status.
	CompleteSale(ctx context.Context, sale Sale) error
	Sale(ctx context.Context, id int64) (Sale, error)
	LockSale(ctx context.Context, id int64) (Sale, error)
	MarkRefunded(ctx context.Context, id int64, at time.Time) error

	InsertItemRefunds(ctx context.Context, rows []ItemRefund) ([]ItemRefund, error)
	ItemRefunds(ctx context.Context, saleID int64) ([]ItemRefund, error)
	// InsertRefundAudit yields ErrAuditExists when the sale already has one.
	InsertRefundAudit(ctx context.Context, audit RefundAudit) (RefundAudit, error)
	RefundAudit(ctx context.Context, saleID int64) (RefundAudit, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewStore constructs a PGStore.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

// ============================================================================
// CART
// ============================================================================

func (s *PGStore) CreateCart(ctx context.Context, cart Cart) (Cart, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO carts (store_id, cashier_id, is_active) VALUES ($1,$2,TRUE) RETURNING id`,
		cart.StoreID, cart.CashierID).Scan(&cart.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("sales: insert cart: %w", err)
	}
	cart.Active = true
	for i := range cart.Lines {
		l := &cart.Lines[i]
		l.CartID = cart.ID
		if err := s.q.QueryRow(ctx, `INSERT INTO cart_lines (cart_id, product_id, quantity, unit_price, discount, tax_rate)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, l.CartID, l.ProductID, l.Quantity, l.UnitPrice, l.Discount, l.TaxRate).Scan(&l.ID); err != nil {
			return Cart{}, fmt.Errorf("sales: insert cart line: %w", err)
		}
	}
	return cart, nil
}

func (s *PGStore) LockCart(ctx context.Context, id int64) (Cart, error) {
	var cart Cart
	err := s.q.QueryRow(ctx, `SELECT id, store_id, cashier_id, is_active FROM carts WHERE id=$1 FOR UPDATE`, id).
		Scan(&cart.ID, &cart.StoreID, &cart.CashierID, &cart.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, shared.ErrNotFound
		}
		return Cart{}, err
	}
	if err := pgxscan.Select(ctx, s.q, &cart.Lines, `SELECT id, cart_id, product_id, quantity, unit_price, discount, tax_rate
FROM cart_lines WHERE cart_id=$1 ORDER BY id`, id); err != nil {
		return Cart{}, fmt.Errorf("sales: cart lines: %w", err)
	}
	return cart, nil
}

func (s *PGStore) CloseCart(ctx context.Context, id int64) error {
	if _, err := s.q.Exec(ctx, `UPDATE carts SET is_active=FALSE WHERE id=$1`, id); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id=$1`, id)
	return err
}

// ============================================================================
// SALE
// ============================================================================

func (s *PGStore) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO sales (public_id, chart_id, store_id, cart_id, cashier_id, status, payment_method)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		sale.PublicID, sale.ChartID, sale.StoreID, sale.CartID, sale.CashierID, StatusDraft, sale.PaymentMethod).
		Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	sale.Status = StatusDraft
	for i := range sale.Items {
		it := &sale.Items[i]
		it.SaleID = sale.ID
		if err := s.q.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, discount, tax_rate, line_subtotal, tax)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.Discount, it.TaxRate, it.LineSubtotal, it.Tax).Scan(&it.ID); err != nil {
			return Sale{}, fmt.Errorf("sales: insert item: %w", err)
		}
	}
	return sale, nil
}

func (s *PGStore) CompleteSale(ctx context.Context, sale Sale) error {
	tag, err := s.q.Exec(ctx, `UPDATE sales SET status=$2, subtotal=$3, discount=$4, tax=$5, total=$6, cogs=$7, gross_profit=$8,
journal_entry_id=$9, completed_at=$10 WHERE id=$1 AND status=$11`,
		sale.ID, StatusCompleted, sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.COGS, sale.GrossProfit,
		sale.JournalEntryID, sale.CompletedAt, StatusDraft)
	if err != nil {
		return fmt.Errorf("sales: complete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Invalid("status", "sale %d is not a draft", sale.ID)
	}
	for _, it := range sale.Items {
		if _, err := s.q.Exec(ctx, `UPDATE sale_items SET unit_cost=$2, cogs=$3, gross_profit=$4 WHERE id=$1`,
			it.ID, it.UnitCost, it.COGS, it.GrossProfit); err != nil {
			return fmt.Errorf("sales: cost item %d: %w", it.ID, err)
		}
	}
	for _, leg := range sale.Legs {
		if _, err := s.q.Exec(ctx, `INSERT INTO sale_payment_legs (sale_id, method, amount) VALUES ($1,$2,$3)`,
			sale.ID, leg.Method, leg.Amount); err != nil {
			return fmt.Errorf("sales: insert leg: %w", err)
		}
	}
	return nil
}

const saleColumns = `id, public_id, chart_id, store_id, cart_id, cashier_id, status, payment_method, subtotal, discount, tax, total,
cogs, gross_profit, journal_entry_id, created_at, completed_at, refunded_at`

func (s *PGStore) Sale(ctx context.Context, id int64) (Sale, error) {
	return s.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id)
}

func (s *PGStore) LockSale(ctx context.Context, id int64) (Sale, error) {
	return s.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id)
}

func (s *PGStore) loadSale(ctx context.Context, query string, id int64) (Sale, error) {
	var sale Sale
	err := s.q.QueryRow(ctx, query, id).Scan(&sale.ID, &sale.PublicID, &sale.ChartID, &sale.StoreID, &sale.CartID, &sale.CashierID,
		&sale.Status, &sale.PaymentMethod, &sale.Subtotal, &sale.Discount, &sale.Tax, &sale.Total, &sale.COGS, &sale.GrossProfit,
		&sale.JournalEntryID, &sale.CreatedAt, &sale.CompletedAt, &sale.RefundedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	if err := pgxscan.Select(ctx, s.q, &sale.Items, `SELECT id, sale_id, product_id, quantity, unit_price, discount, tax_rate,
line_subtotal, tax, unit_cost, cogs, gross_profit FROM sale_items WHERE sale_id=$1 ORDER BY id`, id); err != nil {
		return Sale{}, fmt.Errorf("sales: load items: %w", err)
	}
	if err := pgxscan.Select(ctx, s.q, &sale.Legs, `SELECT id, sale_id, method, amount FROM sale_payment_legs WHERE sale_id=$1 ORDER BY id`, id); err != nil {
		return Sale{}, fmt.Errorf("sales: load legs: %w", err)
	}
	return sale, nil
}

func (s *PGStore) MarkRefunded(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE sales SET status=$2, refunded_at=$3 WHERE id=$1 AND status=$4`, id, StatusRefunded, at, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Invalid("status", "sale %d is not completed", id)
	}
	return nil
}

// ============================================================================
// REFUNDS
// ============================================================================

func (s *PGStore) InsertItemRefunds(ctx context.Context, rows []ItemRefund) ([]ItemRefund, error) {
	out := make([]ItemRefund, 0, len(rows))
	for _, r := range rows {
		if err := s.q.QueryRow(ctx, `INSERT INTO sale_item_refunds (sale_id, sale_item_id, refund_group, quantity, subtotal, discount, tax, cogs, actor_id, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
			r.SaleID, r.SaleItemID, r.RefundGroup, r.Quantity, r.Subtotal, r.Discount, r.Tax, r.COGS, r.ActorID, r.Reason).
			Scan(&r.ID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sales: insert item refund: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PGStore) ItemRefunds(ctx context.Context, saleID int64) ([]ItemRefund, error) {
	var out []ItemRefund
	err := pgxscan.Select(ctx, s.q, &out, `SELECT id, sale_id, sale_item_id, refund_group, quantity, subtotal, discount, tax, cogs,
actor_id, reason, created_at FROM sale_item_refunds WHERE sale_id=$1 ORDER BY id`, saleID)
	return out, err
}

const auditColumns = `id, sale_id, kind, actor_id, reason, subtotal, discount, tax, total, cogs, created_at`

func (s *PGStore) InsertRefundAudit(ctx context.Context, a RefundAudit) (RefundAudit, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO refund_audits (sale_id, kind, actor_id, reason, subtotal, discount, tax, total, cogs)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		a.SaleID, a.Kind, a.ActorID, a.Reason, a.Subtotal, a.Discount, a.Tax, a.Total, a.COGS).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if name, code, ok := db.Constraint(err); ok && code == db.CodeUniqueViolation && name == "uq_refund_audits_sale" {
			return RefundAudit{}, ErrAuditExists
		}
		return RefundAudit{}, err
	}
	return a, nil
}

func (s *PGStore) RefundAudit(ctx context.Context, saleID int64) (RefundAudit, error) {
	var a RefundAudit
	err := pgxscan.Get(ctx, s.q, &a, `SELECT `+auditColumns+` FROM refund_audits WHERE sale_id=$1`, saleID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return RefundAudit{}, shared.ErrNotFound
		}
		return RefundAudit{}, err
	}
	return a, nil
}
