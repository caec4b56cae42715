package reports

import (
	"context"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// SourcePeriodClose marks retained-earnings sweeps, left out of profit and loss.
const SourcePeriodClose = "period_close"

// Service produces read-only financial statements.
type Service struct {
	store Store
}

// NewService constructs the reporting service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Balances aggregates posted lines per account up to asOf.
func (s *Service) Balances(ctx context.Context, chartID int64, asOf time.Time, from *time.Time) ([]AccountBalance, error) {
	if chartID <= 0 {
		return nil, shared.Invalid("chart_id", "required")
	}
	return s.store.Balances(ctx, BalanceQuery{ChartID: chartID, From: from, To: asOf})
}

// TrialBalance lists non-zero balances as of asOf.
func (s *Service) TrialBalance(ctx context.Context, chartID int64, asOf time.Time) (TrialBalance, error) {
	balances, err := s.Balances(ctx, chartID, asOf, nil)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(balances), nil
}

// BalanceSheet reports assets, liabilities and equity as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, chartID int64, asOf time.Time) (BalanceSheet, error) {
	balances, err := s.Balances(ctx, chartID, asOf, nil)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(balances)
}

// ProfitAndLoss reports revenue and expense between from (open when nil) and
// to. Period close sweeps are excluded so closed periods keep their results.
func (s *Service) ProfitAndLoss(ctx context.Context, chartID int64, from *time.Time, to time.Time) (ProfitAndLoss, error) {
	if chartID <= 0 {
		return ProfitAndLoss{}, shared.Invalid("chart_id", "required")
	}
	if from != nil && from.After(to) {
		return ProfitAndLoss{}, shared.Invalid("from", "after to")
	}
	balances, err := s.store.Balances(ctx, BalanceQuery{ChartID: chartID, From: from, To: to, ExcludeSources: []string{SourcePeriodClose}})
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(balances), nil
}
