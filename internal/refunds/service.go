// Package refunds reverses completed sales, wholly or item by item, returning
// stock to the batches it came from and posting the mirror entries.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// ErrForbidden indicates the actor may not refund the sale.
var ErrForbidden = errors.New("refunds: actor not permitted")

// Authorizer gates refunds. A non-nil error rejects the request.
type Authorizer interface {
	AuthorizeRefund(ctx context.Context, actorID int64, sale sales.Sale) error
}

// AuditPort records refunds.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// FullInput requests a refund of the whole sale.
type FullInput struct {
	SaleID  int64 `validate:"required,gt=0"`
	ActorID int64 `validate:"gte=0"`
	Reason  string
	At      time.Time
}

// FullResult is the refunded sale. AlreadyRefunded is set when the sale was
// refunded before this call and nothing was written.
type FullResult struct {
	Sale            sales.Sale
	Audit           sales.RefundAudit
	Entry           journals.Entry
	Movements       []inventory.Movement
	AlreadyRefunded bool
}

// Line requests quantity of one sale item back.
type Line struct {
	SaleItemID int64 `validate:"required,gt=0"`
	Quantity   decimal.Decimal
}

// PartialInput requests a refund of some sale items.
type PartialInput struct {
	SaleID  int64 `validate:"required,gt=0"`
	ActorID int64 `validate:"gte=0"`
	Reason  string
	Lines   []Line `validate:"required,min=1,dive"`
	At      time.Time
}

// PartialResult is one partial refund. Finalized is set when it returned
// the last sold unit and the sale moved to refunded.
type PartialResult struct {
	Sale      sales.Sale
	Group     uuid.UUID
	Rows      []sales.ItemRefund
	Entry     journals.Entry
	Movements []inventory.Movement
	Finalized bool
	Audit     *sales.RefundAudit
}

// Service orchestrates refunds.
type Service struct {
	runner     store.Runner
	stock      *inventory.Engine
	poster     *integration.Poster
	authorizer Authorizer
	audit      AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the refund service. authorizer and audit may be nil.
func NewService(runner store.Runner, stock *inventory.Engine, poster *integration.Poster, authorizer Authorizer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, stock: stock, poster: poster, authorizer: authorizer, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return t.UTC()
}

func (s *Service) lockSale(ctx context.Context, tx store.Tx, saleID, actorID int64) (sales.Sale, error) {
	sale, err := tx.Sales().LockSale(ctx, saleID)
	if err != nil {
		return sales.Sale{}, fmt.Errorf("refunds: load sale %d: %w", saleID, err)
	}
	if s.authorizer != nil {
		if err := s.authorizer.AuthorizeRefund(ctx, actorID, sale); err != nil {
			return sales.Sale{}, err
		}
	}
	return sale, nil
}

// RefundFull restores every unit of the sale and posts the exact mirror of
// its stored amounts. Sales with partial refunds must be finished partially.
func (s *Service) RefundFull(ctx context.Context, in FullInput) (FullResult, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return FullResult{}, err
	}
	at := s.at(in.At)
	var res FullResult
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := s.lockSale(ctx, tx, in.SaleID, in.ActorID)
		if err != nil {
			return err
		}
		if sale.Status == sales.StatusRefunded {
			audit, err := tx.Sales().RefundAudit(ctx, sale.ID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			res = FullResult{Sale: sale, Audit: audit, AlreadyRefunded: true}
			return nil
		}
		if sale.Status != sales.StatusCompleted {
			return shared.Invalid("status", "sale %d is %s", sale.ID, sale.Status)
		}
		prior, err := tx.Sales().ItemRefunds(ctx, sale.ID)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			return shared.Invalid("sale_id", "sale %d has partial refunds; refund the remaining items", sale.ID)
		}

		audit, err := tx.Sales().InsertRefundAudit(ctx, snapshot(sale, sales.RefundKindFull, in.ActorID, in.Reason))
		if err != nil {
			return err
		}
		ref := integration.SaleRefundRef(sale.ID)
		moved, err := s.stock.Restore(ctx, tx.Stock(), inventory.RestoreInput{SaleID: sale.ID, At: at, Reference: ref.String()})
		if err != nil {
			return err
		}
		amounts := integration.FullRefundAmounts(sale, inventory.TotalValue(moved))
		entry, err := s.post(ctx, tx, sale, amounts, ref, "Refund of sale "+sale.PublicID.String(), at, in.ActorID)
		if err != nil {
			return err
		}
		if err := tx.Sales().MarkRefunded(ctx, sale.ID, at); err != nil {
			return err
		}
		sale.Status, sale.RefundedAt = sales.StatusRefunded, &at
		res = FullResult{Sale: sale, Audit: audit, Entry: entry, Movements: moved}
		return nil
	})
	if err != nil {
		return FullResult{}, err
	}
	if !res.AlreadyRefunded {
		s.logger.Info("sale refunded", slog.Int64("sale_id", res.Sale.ID), slog.String("total", res.Sale.Total.StringFixed(2)))
		s.record(ctx, in.ActorID, "sale.refunded", res.Sale.ID, map[string]any{"kind": string(sales.RefundKindFull), "reason": in.Reason})
	}
	return res, nil
}

// RefundPartial refunds the requested quantities, prorating the item amounts
// and payment legs. The refund that returns the last sold unit takes every
// remainder and finalizes the sale.
func (s *Service) RefundPartial(ctx context.Context, in PartialInput) (PartialResult, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return PartialResult{}, err
	}
	requested := make([]integration.RefundLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		requested = append(requested, integration.RefundLine{SaleItemID: l.SaleItemID, Quantity: l.Quantity})
	}
	lines, err := integration.AggregateLines(requested)
	if err != nil {
		return PartialResult{}, err
	}
	at := s.at(in.At)

	var res PartialResult
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := s.lockSale(ctx, tx, in.SaleID, in.ActorID)
		if err != nil {
			return err
		}
		if sale.Status != sales.StatusCompleted {
			return shared.Invalid("status", "sale %d is %s", sale.ID, sale.Status)
		}
		prior, err := tx.Sales().ItemRefunds(ctx, sale.ID)
		if err != nil {
			return err
		}
		items, err := integration.ProrateItems(sale, prior, lines)
		if err != nil {
			return err
		}

		group := uuid.New()
		ref := integration.PartialRefundRef(group)
		restore := make([]inventory.RestoreItem, 0, len(lines))
		for _, l := range lines {
			restore = append(restore, inventory.RestoreItem{SaleItemID: l.SaleItemID, Quantity: l.Quantity})
		}
		moved, err := s.stock.Restore(ctx, tx.Stock(), inventory.RestoreInput{SaleID: sale.ID, Items: restore, At: at, Reference: ref.String()})
		if err != nil {
			return err
		}

		rows, amounts, exhausting := refundRows(sale, prior, items, moved)
		for i := range rows {
			rows[i].RefundGroup = group
			rows[i].ActorID = in.ActorID
			rows[i].Reason = in.Reason
		}
		amounts.Legs = integration.ProrateLegs(sale, integration.GroupTotals(prior), amounts.Total(), exhausting)
		stored, err := tx.Sales().InsertItemRefunds(ctx, rows)
		if err != nil {
			return err
		}
		entry, err := s.post(ctx, tx, sale, amounts, ref, "Partial refund of sale "+sale.PublicID.String(), at, in.ActorID)
		if err != nil {
			return err
		}
		res = PartialResult{Sale: sale, Group: group, Rows: stored, Entry: entry, Movements: moved}

		if !exhausting {
			return nil
		}
		audit, err := tx.Sales().InsertRefundAudit(ctx, snapshot(sale, sales.RefundKindPartialCompleted, in.ActorID, in.Reason))
		if err != nil {
			return err
		}
		if err := tx.Sales().MarkRefunded(ctx, sale.ID, at); err != nil {
			return err
		}
		res.Sale.Status, res.Sale.RefundedAt = sales.StatusRefunded, &at
		res.Finalized, res.Audit = true, &audit
		return nil
	})
	if err != nil {
		return PartialResult{}, err
	}
	s.logger.Info("sale partially refunded",
		slog.Int64("sale_id", res.Sale.ID),
		slog.String("group", res.Group.String()),
		slog.Bool("finalized", res.Finalized),
	)
	s.record(ctx, in.ActorID, "sale.refunded_partial", res.Sale.ID, map[string]any{"group": res.Group.String(), "finalized": res.Finalized})
	return res, nil
}

// refundRows builds the refund rows with their cost. An item refunded to
// exhaustion reverses whatever cost earlier refunds left, so cumulative
// reversals equal the costed sale.
func refundRows(sale sales.Sale, prior []sales.ItemRefund, items []integration.ItemAmounts, moved []inventory.Movement) ([]sales.ItemRefund, integration.RefundAmounts, bool) {
	restored := make(map[int64]decimal.Decimal)
	for _, m := range moved {
		if m.SaleItemID != nil {
			restored[*m.SaleItemID] = restored[*m.SaleItemID].Add(m.Value())
		}
	}
	priorCOGS := make(map[int64]decimal.Decimal)
	refundedQty := decimal.Zero
	for _, r := range prior {
		priorCOGS[r.SaleItemID] = priorCOGS[r.SaleItemID].Add(r.COGS)
		refundedQty = refundedQty.Add(r.Quantity)
	}

	amounts := integration.RefundAmounts{Subtotal: decimal.Zero, Discount: decimal.Zero, Tax: decimal.Zero, COGS: decimal.Zero}
	rows := make([]sales.ItemRefund, 0, len(items))
	for _, it := range items {
		cogs := restored[it.SaleItemID]
		if it.Exhausts {
			if item, ok := sale.Item(it.SaleItemID); ok && item.COGS.Valid {
				cogs = item.COGS.Decimal.Sub(priorCOGS[it.SaleItemID])
			}
		}
		rows = append(rows, sales.ItemRefund{
			SaleID:     sale.ID,
			SaleItemID: it.SaleItemID,
			Quantity:   it.Quantity,
			Subtotal:   it.Subtotal,
			Discount:   it.Discount,
			Tax:        it.Tax,
			COGS:       cogs,
		})
		amounts.Subtotal = amounts.Subtotal.Add(it.Subtotal)
		amounts.Discount = amounts.Discount.Add(it.Discount)
		amounts.Tax = amounts.Tax.Add(it.Tax)
		amounts.COGS = amounts.COGS.Add(cogs)
		refundedQty = refundedQty.Add(it.Quantity)
	}
	return rows, amounts, refundedQty.Equal(sale.SoldQuantity())
}

func (s *Service) post(ctx context.Context, tx store.Tx, sale sales.Sale, amounts integration.RefundAmounts, ref *journals.Reference, desc string, at time.Time, actor int64) (journals.Entry, error) {
	codes, err := integration.RefundCodes(amounts)
	if err != nil {
		return journals.Entry{}, err
	}
	acc, err := s.poster.Resolve(ctx, tx, sale.ChartID, codes...)
	if err != nil {
		return journals.Entry{}, err
	}
	lines, err := integration.RefundLines(acc, amounts)
	if err != nil {
		return journals.Entry{}, err
	}
	return s.poster.Post(ctx, tx, journals.PostingInput{
		ChartID:     sale.ChartID,
		Description: desc,
		Lines:       lines,
		Reference:   ref,
		EffectiveAt: at,
		PostedBy:    actor,
	})
}

// snapshot copies the sale's original totals into its refund audit.
func snapshot(sale sales.Sale, kind sales.RefundKind, actor int64, reason string) sales.RefundAudit {
	return sales.RefundAudit{
		SaleID:   sale.ID,
		Kind:     kind,
		ActorID:  actor,
		Reason:   reason,
		Subtotal: sale.Subtotal,
		Discount: sale.Discount,
		Tax:      sale.Tax,
		Total:    sale.Total,
		COGS:     sale.COGS,
	}
}

func (s *Service) record(ctx context.Context, actor int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: "sale", EntityID: strconv.FormatInt(saleID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit refund failed", slog.Int64("sale_id", saleID), slog.Any("error", err))
	}
}
