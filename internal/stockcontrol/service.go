// Package stockcontrol applies stock corrections and expiry write-offs
// together with their ledger postings.
package stockcontrol

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// AdjustInput corrects the remaining quantity of one batch. A negative
// Delta writes stock off, a positive one reverses an earlier write-off.
type AdjustInput struct {
	ChartID int64 `validate:"gte=0"`
	BatchID int64 `validate:"required,gt=0"`
	Delta   decimal.Decimal
	Note    string
	ActorID int64 `validate:"gte=0"`
	At      time.Time
}

// Adjustment is the recorded correction.
type Adjustment struct {
	Movement inventory.Movement
	Entry    journals.Entry
}

// Expired is one batch written off by an expiry sweep.
type Expired struct {
	BatchID  int64
	Movement inventory.Movement
	Entry    journals.Entry
}

// SweepReport summarises an expiry sweep.
type SweepReport struct {
	Expired []Expired
	Failed  map[int64]error
}

// Service orchestrates stock corrections.
type Service struct {
	runner store.Runner
	stock  *inventory.Engine
	poster *integration.Poster
	logger *slog.Logger
}

// NewService constructs the stock control service.
func NewService(runner store.Runner, stock *inventory.Engine, poster *integration.Poster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, stock: stock, poster: poster, logger: logger}
}

// Adjust moves the batch by Delta and posts the value at the batch cost
// against the write-off account.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Adjustment, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Adjustment{}, err
	}
	ref := integration.StockAdjustmentRef(uuid.New())
	var out Adjustment
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}
		m, err := s.stock.Adjust(ctx, tx.Stock(), inventory.AdjustInput{BatchID: in.BatchID, Delta: in.Delta, Reference: ref.String(), At: in.At})
		if err != nil {
			return err
		}
		out.Movement = m
		desc := "Stock adjustment of batch " + strconv.FormatInt(in.BatchID, 10)
		if in.Note != "" {
			desc += ": " + in.Note
		}
		effective := in.At
		if effective.IsZero() {
			effective = m.CreatedAt
		}
		out.Entry, err = s.writeOff(ctx, tx, chartID, m, ref, desc, in.ActorID, effective)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.logger.Info("stock adjusted",
		slog.Int64("batch_id", in.BatchID),
		slog.String("delta", in.Delta.String()),
		slog.Int64("entry_id", out.Entry.ID),
	)
	return out, nil
}

// ListExpired returns the ids of batches with stock left that expired
// before asOf.
func (s *Service) ListExpired(ctx context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batches, err := tx.Stock().ExpiredBatches(ctx, asOf)
		if err != nil {
			return err
		}
		for _, b := range batches {
			ids = append(ids, b.ID)
		}
		return nil
	})
	return ids, err
}

// ExpireBatch writes off one batch in its own transaction. It reports false
// when the batch had nothing left to expire.
func (s *Service) ExpireBatch(ctx context.Context, chartID, batchID int64, asOf time.Time) (Expired, bool, error) {
	movementRef := journals.NewReference(integration.RefStockExpiry, batchID).String()
	var (
		out  Expired
		done bool
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		chart, err := s.poster.ChartID(ctx, tx, chartID)
		if err != nil {
			return err
		}
		m, ok, err := s.stock.Expire(ctx, tx.Stock(), batchID, asOf, movementRef)
		if err != nil || !ok {
			return err
		}
		ref := integration.StockExpiryRef(batchID, m.ID)
		entry, err := s.writeOff(ctx, tx, chart, m, ref, "Expired stock, batch "+strconv.FormatInt(batchID, 10), 0, m.CreatedAt)
		if err != nil {
			return err
		}
		out, done = Expired{BatchID: batchID, Movement: m, Entry: entry}, true
		return nil
	})
	if err != nil {
		return Expired{}, false, err
	}
	return out, done, nil
}

// ExpireBatches sweeps every expired batch one transaction at a time. A batch
// that fails is reported and the sweep goes on.
func (s *Service) ExpireBatches(ctx context.Context, chartID int64, asOf time.Time) (SweepReport, error) {
	ids, err := s.ListExpired(ctx, asOf)
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{Failed: make(map[int64]error)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		exp, ok, err := s.ExpireBatch(ctx, chartID, id, asOf)
		switch {
		case err != nil:
			report.Failed[id] = err
			s.logger.Warn("expire batch failed", slog.Int64("batch_id", id), slog.Any("error", err))
		case ok:
			report.Expired = append(report.Expired, exp)
		}
	}
	s.logger.Info("expiry sweep finished", slog.Int("expired", len(report.Expired)), slog.Int("failed", len(report.Failed)))
	return report, nil
}

// writeOff posts the movement value effective at. Movements without value
// post nothing.
func (s *Service) writeOff(ctx context.Context, tx store.Tx, chartID int64, m inventory.Movement, ref *journals.Reference, desc string, actor int64, at time.Time) (journals.Entry, error) {
	value := m.Value()
	if value.IsZero() {
		return journals.Entry{}, nil
	}
	acc, err := s.poster.Resolve(ctx, tx, chartID, accounts.CodeInventory, accounts.CodeInventoryWriteOff)
	if err != nil {
		return journals.Entry{}, err
	}
	lines, err := integration.WriteOffLines(acc, value, m.Direction == inventory.DirectionOut)
	if err != nil {
		return journals.Entry{}, err
	}
	return s.poster.Post(ctx, tx, journals.PostingInput{
		ChartID:     chartID,
		Description: desc,
		Lines:       lines,
		Reference:   ref,
		EffectiveAt: at,
		PostedBy:    actor,
	})
}

// MissingCost lists batches received without a unit cost.
func (s *Service) MissingCost(ctx context.Context) ([]inventory.Batch, error) {
	var out []inventory.Batch
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Stock().BatchesMissingCost(ctx)
		return err
	})
	return out, err
}

// BackfillCosts sets unit costs on batches that have none, all in one
// transaction. Batches that already carry a cost are skipped; the ids that
// were updated are returned in ascending order.
func (s *Service) BackfillCosts(ctx context.Context, costs map[int64]decimal.Decimal) ([]int64, error) {
	ids := make([]int64, 0, len(costs))
	for id := range costs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var applied []int64
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		applied = applied[:0]
		for _, id := range ids {
			ok, err := s.stock.BackfillCost(ctx, tx.Stock(), id, costs[id])
			if err != nil {
				return fmt.Errorf("stockcontrol: backfill batch %d: %w", id, err)
			}
			if ok {
				applied = append(applied, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch costs backfilled", slog.Int("requested", len(ids)), slog.Int("applied", len(applied)))
	return applied, nil
}
