// Package openings brings account balances into a chart as one opening entry.
package openings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// Line is one opening balance: an account code, its side and amount. Side is
// DEBIT or CREDIT, or the short forms D and C.
type Line struct {
	Code   string `validate:"required"`
	Side   string `validate:"required"`
	Amount decimal.Decimal
}

// Result is the opening entry. AlreadyPosted is set when the chart already
// had its openings and Entry is the entry recorded then.
type Result struct {
	Entry         journals.Entry
	AlreadyPosted bool
}

// Input describes the opening balances of a chart as of a date.
type Input struct {
	ChartID int64     `validate:"gte=0"`
	AsOf    time.Time `validate:"required"`
	Lines   []Line    `validate:"required,min=2,dive"`
	ActorID int64     `validate:"gte=0"`
}

// Service posts opening balances.
type Service struct {
	runner store.Runner
	poster *integration.Poster
	logger *slog.Logger
}

// NewService constructs the opening balance service.
func NewService(runner store.Runner, poster *integration.Poster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, poster: poster, logger: logger}
}

// Post validates the balances and posts them with reference
// opening_balance:<chart>, so a chart receives its openings once. Posting
// again returns the first entry.
func (s *Service) Post(ctx context.Context, in Input) (Result, error) {
	lines, err := prepare(in)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}
		codes := make([]accounts.Code, 0, len(lines))
		for _, l := range lines {
			codes = append(codes, l.Code)
		}
		acc, err := s.poster.Resolve(ctx, tx, chartID, codes...)
		if err != nil {
			return err
		}
		posting, err := integration.OpeningLines(acc, lines)
		if err != nil {
			return err
		}
		res.Entry, res.AlreadyPosted, err = s.poster.PostIdempotent(ctx, tx, journals.PostingInput{
			ChartID:     chartID,
			Description: "Opening balances",
			Lines:       posting,
			Reference:   integration.OpeningBalanceRef(chartID),
			EffectiveAt: in.AsOf,
			PostedBy:    in.ActorID,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if res.AlreadyPosted {
		return res, nil
	}
	s.logger.Info("opening balances posted", slog.Int64("chart_id", res.Entry.ChartID), slog.Int64("entry_id", res.Entry.ID), slog.Int("lines", len(res.Entry.Lines)))
	return res, nil
}

// prepare rejects repeated codes and unbalanced sides before anything is
// resolved or written.
func prepare(in Input) ([]integration.OpeningLine, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(in.Lines))
	out := make([]integration.OpeningLine, 0, len(in.Lines))
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range in.Lines {
		code := accounts.NormalizeCode(l.Code)
		if _, dup := seen[code]; dup {
			return nil, shared.Invalid("code", "account %s appears more than once", code)
		}
		seen[code] = struct{}{}
		if !l.Amount.IsPositive() || !shared.IsMinorUnit(l.Amount) {
			return nil, shared.Invalid("amount", "account %s: amount must be positive with at most two decimals", code)
		}
		side, err := parseSide(l.Side)
		if err != nil {
			return nil, err
		}
		if side == integration.SideDebit {
			debit = debit.Add(l.Amount)
		} else {
			credit = credit.Add(l.Amount)
		}
		out = append(out, integration.OpeningLine{Code: accounts.Code(code), Side: side, Amount: l.Amount})
	}
	if !debit.Equal(credit) {
		return nil, &shared.ImbalanceError{Debit: debit, Credit: credit}
	}
	return out, nil
}

func parseSide(raw string) (integration.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "D", "DEBIT":
		return integration.SideDebit, nil
	case "C", "CREDIT":
		return integration.SideCredit, nil
	}
	return "", shared.Invalid("side", "unknown side %q", raw)
}
