// Package procurement receives supplier deliveries into stock and books
// their value against payables or the account that paid them.
package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// AuditPort records receipts.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates goods receipts.
type Service struct {
	runner store.Runner
	stock  *inventory.Engine
	poster *integration.Poster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs procurement service. audit may be nil.
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

// Receive creates one batch and RECEIPT movement per line and posts the
// received value once per invoice: Dr Inventory, Cr the settlement account.
func (s *Service) Receive(ctx context.Context, in ReceiptInput) (Receipt, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Receipt{}, err
	}
	settlement, err := in.Settlement.Code()
	if err != nil {
		return Receipt{}, err
	}
	for _, l := range in.Lines {
		if !l.Quantity.IsPositive() {
			return Receipt{}, shared.Invalid("quantity", "product %d: must be positive", l.ProductID)
		}
		if l.UnitCost == nil {
			return Receipt{}, shared.Invalid("unit_cost", "product %d: required", l.ProductID)
		}
		if l.UnitCost.IsNegative() || !l.UnitCost.Equal(l.UnitCost.Round(4)) {
			return Receipt{}, shared.Invalid("unit_cost", "product %d: must be non-negative with at most four decimals", l.ProductID)
		}
	}
	at := in.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	ref := integration.PurchaseReceiptRef(in.InvoiceRef)

	var out Receipt
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if existing, err := tx.Journals().EntryByReference(ctx, ref.String()); err == nil {
			value, _ := existing.Totals()
			out = Receipt{Entry: existing, Value: value, AlreadyReceived: true}
			return nil
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}

		out = Receipt{Value: decimal.Zero}
		for _, l := range in.Lines {
			b, m, err := s.stock.Receive(ctx, tx.Stock(), inventory.ReceiveInput{
				ProductID:   l.ProductID,
				StoreID:     in.StoreID,
				BatchNumber: l.BatchNumber,
				ExpiresOn:   l.ExpiresOn,
				Quantity:    l.Quantity,
				UnitCost:    decimal.NewNullDecimal(*l.UnitCost),
				ReceivedAt:  at,
				Reference:   ref.String(),
			})
			if err != nil {
				return err
			}
			out.Batches = append(out.Batches, b)
			out.Movements = append(out.Movements, m)
			out.Value = out.Value.Add(l.Value())
		}
		if out.Value.IsZero() {
			return nil
		}

		acc, err := s.poster.Resolve(ctx, tx, chartID, accounts.CodeInventory, settlement)
		if err != nil {
			return err
		}
		lines, err := integration.PurchaseReceiptLines(acc, out.Value, settlement)
		if err != nil {
			return err
		}
		out.Entry, _, err = s.poster.PostIdempotent(ctx, tx, journals.PostingInput{
			ChartID:     chartID,
			Description: "Goods received, invoice " + in.InvoiceRef,
			Lines:       lines,
			Reference:   ref,
			EffectiveAt: at,
			PostedBy:    in.ActorID,
		})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	if out.AlreadyReceived {
		s.logger.Info("invoice already received", slog.String("invoice", in.InvoiceRef), slog.Int64("entry_id", out.Entry.ID))
		return out, nil
	}
	s.logger.Info("goods received",
		slog.String("invoice", in.InvoiceRef),
		slog.Int("batches", len(out.Batches)),
		slog.String("value", out.Value.StringFixed(2)),
	)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "goods.received",
			Entity:   "purchase_receipt",
			EntityID: ref.ID,
			Meta:     map[string]any{"batches": len(out.Batches), "value": out.Value.StringFixed(2)},
		}); err != nil {
			s.logger.Warn("audit receipt failed", slog.String("invoice", in.InvoiceRef), slog.Any("error", err))
		}
	}
	return out, nil
}
