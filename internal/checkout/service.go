// Package checkout turns an open cart into a completed sale: stock is
// deducted in FEFO order, the sale is costed and posted, and the cart is
// closed, all inside one transaction.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// AuditPort records completed sales.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes checkout attempts.
type Metrics interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

// Leg is one part of a split payment.
type Leg struct {
	Method string `validate:"required"`
	Amount decimal.Decimal
}

// Input describes a checkout request. ChartID zero uses the chart pinned on
// the context or the active chart. StoreID nil uses the cart's store.
type Input struct {
	CartID        int64 `validate:"required,gt=0"`
	ChartID       int64 `validate:"gte=0"`
	StoreID       *int64
	ActorID       int64  `validate:"gte=0"`
	PaymentMethod string `validate:"required"`
	Legs          []Leg  `validate:"dive"`
	At            time.Time
}

// Result is the completed sale with its posting and stock movements.
type Result struct {
	Sale      sales.Sale
	Entry     journals.Entry
	Movements []inventory.Movement
}

// Service orchestrates checkout.
type Service struct {
	runner  store.Runner
	stock   *inventory.Engine
	poster  *integration.Poster
	audit   AuditPort
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the checkout service. audit may be nil.
func NewService(runner store.Runner, stock *inventory.Engine, poster *integration.Poster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, stock: stock, poster: poster, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches checkout metrics.
func (s *Service) WithMetrics(m Metrics) {
	s.metrics = m
}

// Checkout completes the cart. Any failure leaves cart, stock, sale and
// ledger exactly as they were.
func (s *Service) Checkout(ctx context.Context, in Input) (Result, error) {
	started := time.Now()
	res, err := s.checkout(ctx, in)
	if s.metrics != nil {
		s.metrics.ObserveCheckout(outcome(err), time.Since(started))
	}
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("sale completed",
		slog.Int64("sale_id", res.Sale.ID),
		slog.String("total", res.Sale.Total.StringFixed(2)),
		slog.String("cogs", res.Sale.COGS.StringFixed(2)),
		slog.Int("movements", len(res.Movements)),
	)
	s.record(ctx, in.ActorID, res.Sale)
	return res, nil
}

func (s *Service) checkout(ctx context.Context, in Input) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	legs, err := settlement(in)
	if err != nil {
		return Result{}, err
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var res Result
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.Sales().LockCart(ctx, in.CartID)
		if errors.Is(err, shared.ErrNotFound) {
			return sales.ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("checkout: lock cart: %w", err)
		}
		if !cart.Active || len(cart.Lines) == 0 {
			return sales.ErrEmptyCart
		}
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}
		storeID := in.StoreID
		if storeID == nil {
			storeID = cart.StoreID
		}

		items := make([]sales.Item, 0, len(cart.Lines))
		for _, line := range cart.Lines {
			item, err := sales.NewItem(line)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := s.validateStock(ctx, tx.Stock(), items, storeID, at); err != nil {
			return err
		}

		cashier := in.ActorID
		if cashier == 0 {
			cashier = cart.CashierID
		}
		sale, err := tx.Sales().InsertSale(ctx, sales.Sale{
			PublicID:      uuid.New(),
			ChartID:       chartID,
			StoreID:       storeID,
			CartID:        &cart.ID,
			CashierID:     cashier,
			PaymentMethod: in.PaymentMethod,
			Items:         items,
		})
		if err != nil {
			return err
		}

		ref := integration.SaleRef(sale.ID).String()
		for i := range sale.Items {
			it := &sale.Items[i]
			moved, err := s.stock.Deduct(ctx, tx.Stock(), inventory.DeductInput{
				ProductID:  it.ProductID,
				Quantity:   it.Quantity,
				SaleID:     sale.ID,
				SaleItemID: it.ID,
				StoreID:    storeID,
				At:         at,
				Reference:  ref,
			})
			if err != nil {
				return err
			}
			cogs := inventory.TotalValue(moved)
			it.COGS = decimal.NewNullDecimal(cogs)
			it.UnitCost = decimal.NewNullDecimal(cogs.DivRound(it.Quantity, 4))
			it.GrossProfit = decimal.NewNullDecimal(it.NetRevenue().Sub(cogs))
			res.Movements = append(res.Movements, moved...)
		}

		sale.ApplyTotals()
		if len(legs) > 0 {
			sum := decimal.Zero
			for _, leg := range legs {
				sum = sum.Add(leg.Amount)
			}
			if !sum.Equal(sale.Total) {
				return sales.ErrSplitMismatch
			}
			sale.Legs = legs
		}
		completed := at
		sale.CompletedAt = &completed

		entry, err := s.post(ctx, tx, sale, at, cashier)
		if err != nil {
			return err
		}
		sale.JournalEntryID = &entry.ID
		sale.Status = sales.StatusCompleted
		if err := tx.Sales().CompleteSale(ctx, sale); err != nil {
			return err
		}
		if err := tx.Sales().CloseCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("checkout: close cart: %w", err)
		}
		res.Sale, res.Entry = sale, entry
		return nil
	})
	return res, err
}

// validateStock checks every product against its locked candidates before
// anything is written. Products are locked in ascending id order so two
// terminals selling the same products cannot deadlock.
func (s *Service) validateStock(ctx context.Context, st inventory.Store, items []sales.Item, storeID *int64, at time.Time) error {
	need := make(map[int64]decimal.Decimal)
	for _, it := range items {
		need[it.ProductID] = need[it.ProductID].Add(it.Quantity)
	}
	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		available, err := s.stock.Available(ctx, st, id, storeID, at)
		if err != nil {
			return err
		}
		if available.LessThan(need[id]) {
			return &shared.InsufficientStockError{ProductID: id, StoreID: storeID, Requested: need[id], Available: available}
		}
	}
	return nil
}

func (s *Service) post(ctx context.Context, tx store.Tx, sale sales.Sale, at time.Time, actor int64) (journals.Entry, error) {
	codes, err := integration.SaleCodes(sale)
	if err != nil {
		return journals.Entry{}, err
	}
	acc, err := s.poster.Resolve(ctx, tx, sale.ChartID, codes...)
	if err != nil {
		return journals.Entry{}, err
	}
	lines, err := integration.SaleLines(acc, sale)
	if err != nil {
		return journals.Entry{}, err
	}
	return s.poster.Post(ctx, tx, journals.PostingInput{
		ChartID:     sale.ChartID,
		Description: "Sale " + sale.PublicID.String(),
		Lines:       lines,
		Reference:   integration.SaleRef(sale.ID),
		EffectiveAt: at,
		PostedBy:    actor,
	})
}

// settlement validates the payment method and returns split legs, if any.
func settlement(in Input) ([]sales.PaymentLeg, error) {
	if in.PaymentMethod != sales.MethodSplit {
		if len(in.Legs) > 0 {
			return nil, shared.Invalid("legs", "legs require payment method %s", sales.MethodSplit)
		}
		if !sales.ValidMethod(in.PaymentMethod) {
			return nil, shared.Invalid("payment_method", "unsupported method %q", in.PaymentMethod)
		}
		return nil, nil
	}
	if len(in.Legs) == 0 {
		return nil, shared.Invalid("legs", "split payment requires legs")
	}
	legs := make([]sales.PaymentLeg, 0, len(in.Legs))
	for i, leg := range in.Legs {
		if !sales.ValidMethod(leg.Method) {
			return nil, shared.Invalid("legs["+strconv.Itoa(i)+"]", "unsupported method %q", leg.Method)
		}
		if !leg.Amount.IsPositive() || !shared.IsMinorUnit(leg.Amount) {
			return nil, shared.Invalid("legs["+strconv.Itoa(i)+"]", "amount must be positive with at most two decimals")
		}
		legs = append(legs, sales.PaymentLeg{Method: leg.Method, Amount: leg.Amount})
	}
	return legs, nil
}

func (s *Service) record(ctx context.Context, actor int64, sale sales.Sale) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "sale.completed",
		Entity:   "sale",
		EntityID: strconv.FormatInt(sale.ID, 10),
		Meta: map[string]any{
			"public_id": sale.PublicID.String(),
			"total":     sale.Total.StringFixed(2),
			"cogs":      sale.COGS.StringFixed(2),
		},
	})
	if err != nil {
		s.logger.Warn("audit sale failed", slog.Int64("sale_id", sale.ID), slog.Any("error", err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, inventory.ErrMissingCost):
		return "missing_cost"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return journals.Outcome(err)
	}
}
