// Package expenses books operating expenses paid from cash, bank or on
// account.
package expenses

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// Input describes one expense. AccountCode is a semantic or literal code of
// an EXPENSE account; PaidFrom defaults to CASH.
type Input struct {
	ChartID     int64  `validate:"gte=0"`
	Reference   string `validate:"required"`
	AccountCode string `validate:"required"`
	Amount      decimal.Decimal
	PaidFrom    string
	IncurredAt  time.Time
	Description string
	ActorID     int64 `validate:"gte=0"`
}

// Result is the expense entry. AlreadyPosted is set when the reference was
// recorded before and Entry is that earlier entry.
type Result struct {
	Entry         journals.Entry
	AlreadyPosted bool
}

// Service records expenses.
type Service struct {
	runner store.Runner
	poster *integration.Poster
	logger *slog.Logger
}

// NewService constructs the expense service.
func NewService(runner store.Runner, poster *integration.Poster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, poster: poster, logger: logger}
}

// Record posts Dr expense, Cr the paying account under reference
// expense:<reference>. Recording the same reference again returns the
// first entry.
func (s *Service) Record(ctx context.Context, in Input) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	if !in.Amount.IsPositive() || !shared.IsMinorUnit(in.Amount) {
		return Result{}, shared.Invalid("amount", "must be positive with at most two decimals")
	}
	expense := accounts.Code(accounts.NormalizeCode(in.AccountCode))
	paidFrom := accounts.CodeCash
	if in.PaidFrom != "" {
		paidFrom = accounts.Code(accounts.NormalizeCode(in.PaidFrom))
	}
	desc := in.Description
	if desc == "" {
		desc = "Expense " + in.Reference
	}

	var res Result
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		chartID, err := s.poster.ChartID(ctx, tx, in.ChartID)
		if err != nil {
			return err
		}
		acc, err := s.poster.Resolve(ctx, tx, chartID, expense, paidFrom)
		if err != nil {
			return err
		}
		if err := requireExpense(ctx, tx, acc[expense]); err != nil {
			return err
		}
		lines, err := integration.ExpenseLines(acc, expense, paidFrom, in.Amount)
		if err != nil {
			return err
		}
		res.Entry, res.AlreadyPosted, err = s.poster.PostIdempotent(ctx, tx, journals.PostingInput{
			ChartID:     chartID,
			Description: desc,
			Lines:       lines,
			Reference:   integration.ExpenseRef(in.Reference),
			EffectiveAt: in.IncurredAt,
			PostedBy:    in.ActorID,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !res.AlreadyPosted {
		s.logger.Info("expense recorded", slog.String("reference", res.Entry.Reference), slog.String("amount", in.Amount.StringFixed(2)))
	}
	return res, nil
}

func requireExpense(ctx context.Context, tx store.Tx, accountID int64) error {
	found, err := tx.Accounts().AccountsByIDs(ctx, []int64{accountID})
	if err != nil {
		return err
	}
	if len(found) != 1 || found[0].Type != accounts.TypeExpense {
		return shared.Invalid("account_code", "account %d is not an expense account", accountID)
	}
	return nil
}
