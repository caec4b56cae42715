// Package close sweeps revenue and expense activity of a date range into
// retained earnings and locks the range against further postings.
package close

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// AuditPort records closes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Input describes a close request. Start and End are inclusive calendar
// dates. RetainedEarningsCode overrides the RETAINED_EARNINGS mapping.
type Input struct {
	ChartID              int64     `validate:"gte=0"`
	Start                time.Time `validate:"required"`
	End                  time.Time `validate:"required"`
	RetainedEarningsCode string
	ActorID              int64 `validate:"gte=0"`
}

// Result is the recorded close. Entry is empty when there was nothing to
// sweep or the range was already closed.
type Result struct {
	Close         periods.Close
	Entry         journals.Entry
	AlreadyClosed bool
}

// Service orchestrates period closes.
type Service struct {
	runner store.Runner
	poster *integration.Poster
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the close service. audit may be nil.
func NewService(runner store.Runner, poster *integration.Poster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, poster: poster, audit: audit, logger: logger}
}

// ClosePeriod posts the closing entry at the last instant of End and records
// the close in the same transaction. Closing an identical range again returns
// the existing close; a different range overlapping a close is rejected.
func (s *Service) ClosePeriod(ctx context.Context, in Input) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	start, end := periods.Day(in.Start), periods.Day(in.End)
	if end.Before(start) {
		return Result{}, shared.Invalid("end", "end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	var res Result
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}
		existing, err := tx.Periods().Overlapping(ctx, chartID, start, end)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if c.Start.Equal(start) && c.End.Equal(end) {
				res = Result{Close: c, AlreadyClosed: true}
				return nil
			}
		}
		if len(existing) > 0 {
			return periods.ErrPeriodOverlap
		}

		closeAt := periods.EndOfDay(end)
		balances, err := tx.Ledger().Balances(ctx, reports.BalanceQuery{ChartID: chartID, From: &start, To: closeAt})
		if err != nil {
			return err
		}
		entry, err := s.sweep(ctx, tx, chartID, in, balances, closeAt)
		if err != nil {
			return err
		}
		record := periods.Close{ChartID: chartID, Start: start, End: end, ClosedBy: in.ActorID}
		if entry.ID != 0 {
			record.EntryID = &entry.ID
		}
		record, err = tx.Periods().InsertClose(ctx, record)
		if err != nil {
			return err
		}
		res = Result{Close: record, Entry: entry}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.AlreadyClosed {
		return res, nil
	}
	s.logger.Info("period closed",
		slog.Int64("chart_id", res.Close.ChartID),
		slog.String("start", start.Format(time.DateOnly)),
		slog.String("end", end.Format(time.DateOnly)),
		slog.Int64("entry_id", res.Entry.ID),
	)
	s.record(ctx, in.ActorID, res.Close)
	return res, nil
}

func (s *Service) sweep(ctx context.Context, tx store.Tx, chartID int64, in Input, balances []reports.AccountBalance, at time.Time) (journals.Entry, error) {
	if !hasActivity(balances) {
		return journals.Entry{}, nil
	}
	code := accounts.CodeRetainedEarnings
	if in.RetainedEarningsCode != "" {
		code = accounts.Code(in.RetainedEarningsCode)
	}
	acc, err := s.poster.Resolve(ctx, tx, chartID, code)
	if err != nil {
		return journals.Entry{}, err
	}
	lines, err := integration.PeriodCloseLines(balances, acc[code])
	if err != nil {
		return journals.Entry{}, err
	}
	start, end := periods.Day(in.Start), periods.Day(in.End)
	return s.poster.Post(ctx, tx, journals.PostingInput{
		ChartID:     chartID,
		Description: "Period close " + start.Format(time.DateOnly) + " to " + end.Format(time.DateOnly),
		Lines:       lines,
		Reference:   integration.PeriodCloseRef(chartID, start, end),
		EffectiveAt: at,
		PostedBy:    in.ActorID,
	})
}

// hasActivity reports whether any revenue or expense account moved in range.
func hasActivity(balances []reports.AccountBalance) bool {
	for _, b := range balances {
		if (b.Type == accounts.TypeRevenue || b.Type == accounts.TypeExpense) && !b.Debit.Equal(b.Credit) {
			return true
		}
	}
	return false
}

func (s *Service) record(ctx context.Context, actor int64, c periods.Close) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"chart_id": c.ChartID,
		"start":    c.Start.Format(time.DateOnly),
		"end":      c.End.Format(time.DateOnly),
	}
	if c.EntryID != nil {
		meta["entry_id"] = *c.EntryID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: "period.closed", Entity: "period_close", EntityID: strconv.FormatInt(c.ID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit close failed", slog.Int64("close_id", c.ID), slog.Any("error", err))
	}
}
