package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	jobmetrics "github.com/DocMeNN/DocMeNN-sub000/internal/jobs"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// IntegrityReports produces the reports the integrity check inspects.
type IntegrityReports interface {
	TrialBalance(ctx context.Context, chartID int64, asOf time.Time) (reports.TrialBalance, error)
	BalanceSheet(ctx context.Context, chartID int64, asOf time.Time) (reports.BalanceSheet, error)
}

// ChartLister lists the charts to check.
type ChartLister interface {
	ListCharts(ctx context.Context) ([]accounts.Chart, error)
}

// ViolationCounter counts failed checks.
type ViolationCounter interface {
	IntegrityViolation(check string)
}

// Violation is one failed check of one chart.
type Violation struct {
	ChartID int64
	Check   string
	Detail  string
}

// GLIntegrityJob verifies that each chart's trial balance balances and its
// balance sheet satisfies assets = liabilities + equity.
type GLIntegrityJob struct {
	Reports    IntegrityReports
	Charts     ChartLister
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	Violations ViolationCounter
	// Parallel bounds how many charts are checked at once.
	Parallel int
	clock    func() time.Time
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(reports IntegrityReports, charts ChartLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Reports:  reports,
		Charts:   charts,
		Logger:   logger,
		Metrics:  metrics,
		Parallel: 4,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the integrity job.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload GLIntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("gl integrity: payload: %v: %w", err, asynq.SkipRetry)
	}
	asOf, err := parseAsOf(payload.AsOf, j.clock())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	violations, err := j.Run(ctx, payload.ChartID, asOf)
	if err == nil && len(violations) > 0 {
		err = fmt.Errorf("gl integrity: %d violation(s)", len(violations))
	}
	return tracker.End(err)
}

// Run checks one chart, or every chart when chartID is zero, and returns
// the violations found. Errors reading a chart abort the run.
func (j *GLIntegrityJob) Run(ctx context.Context, chartID int64, asOf time.Time) ([]Violation, error) {
	if j == nil || j.Reports == nil || j.Charts == nil {
		return nil, errors.New("gl integrity: dependencies not configured")
	}
	ids := []int64{chartID}
	if chartID == 0 {
		charts, err := j.Charts.ListCharts(ctx)
		if err != nil {
			return nil, fmt.Errorf("gl integrity: list charts: %w", err)
		}
		ids = ids[:0]
		for _, c := range charts {
			ids = append(ids, c.ID)
		}
	}

	var (
		mu         sync.Mutex
		violations []Violation
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Parallel, 1))
	for _, id := range ids {
		id := id
		g.Go(func() error {
			found, err := j.checkChart(ctx, id, asOf)
			if err != nil {
				return err
			}
			mu.Lock()
			violations = append(violations, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, v := range violations {
		j.log().Error("gl integrity violation",
			slog.Int64("chart_id", v.ChartID),
			slog.String("check", v.Check),
			slog.String("detail", v.Detail),
		)
		if j.Violations != nil {
			j.Violations.IntegrityViolation(v.Check)
		}
	}
	j.Metrics.AddItems(TaskGLIntegrity, "checked", len(ids))
	j.Metrics.AddItems(TaskGLIntegrity, "violation", len(violations))
	j.log().Info("gl integrity finished", slog.Int("charts", len(ids)), slog.Int("violations", len(violations)))
	return violations, nil
}

func (j *GLIntegrityJob) checkChart(ctx context.Context, chartID int64, asOf time.Time) ([]Violation, error) {
	var out []Violation
	tb, err := j.Reports.TrialBalance(ctx, chartID, asOf)
	if err != nil {
		return nil, fmt.Errorf("gl integrity: chart %d trial balance: %w", chartID, err)
	}
	if !tb.Balanced() {
		out = append(out, Violation{
			ChartID: chartID,
			Check:   "trial_balance",
			Detail:  "debit " + tb.TotalDebit.StringFixed(2) + " credit " + tb.TotalCredit.StringFixed(2),
		})
	}
	_, err = j.Reports.BalanceSheet(ctx, chartID, asOf)
	var inconsistent *shared.InternalConsistencyError
	switch {
	case errors.As(err, &inconsistent):
		out = append(out, Violation{ChartID: chartID, Check: "balance_sheet", Detail: inconsistent.Error()})
	case err != nil:
		return nil, fmt.Errorf("gl integrity: chart %d balance sheet: %w", chartID, err)
	}
	return out, nil
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
