package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"

	jobmetrics "github.com/DocMeNN/DocMeNN-sub000/internal/jobs"
	"github.com/DocMeNN/DocMeNN-sub000/internal/stockcontrol"
)

// ExpirySweeper lists and writes off expired batches, one transaction per
// batch.
type ExpirySweeper interface {
	ListExpired(ctx context.Context, asOf time.Time) ([]int64, error)
	ExpireBatch(ctx context.Context, chartID, batchID int64, asOf time.Time) (stockcontrol.Expired, bool, error)
}

// ExpiryResult summarises one sweep.
type ExpiryResult struct {
	Expired int
	Failed  int
}

// StockExpiryJob writes off expired batches on a bounded worker pool.
type StockExpiryJob struct {
	Sweeper ExpirySweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Workers int
	clock   func() time.Time
}

// NewStockExpiryJob constructs the job handler.
func NewStockExpiryJob(sweeper ExpirySweeper, workers int, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockExpiryJob {
	return &StockExpiryJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		Workers: workers,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the expiry sweep.
func (j *StockExpiryJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload StockExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("stock expiry: payload: %v: %w", err, asynq.SkipRetry)
	}
	asOf, err := parseAsOf(payload.AsOf, j.clock())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskStockExpiry)
	res, err := j.Run(ctx, payload.ChartID, asOf)
	if err == nil && res.Failed > 0 {
		err = fmt.Errorf("stock expiry: %d batch(es) failed", res.Failed)
	}
	return tracker.End(err)
}

// Run expires every batch found. A failing batch is logged and counted; the
// others still expire.
func (j *StockExpiryJob) Run(ctx context.Context, chartID int64, asOf time.Time) (ExpiryResult, error) {
	if j == nil || j.Sweeper == nil {
		return ExpiryResult{}, errors.New("stock expiry: dependencies not configured")
	}
	ids, err := j.Sweeper.ListExpired(ctx, asOf)
	if err != nil {
		return ExpiryResult{}, fmt.Errorf("stock expiry: list: %w", err)
	}
	if len(ids) == 0 {
		return ExpiryResult{}, nil
	}
	pool, err := ants.NewPool(max(j.Workers, 1))
	if err != nil {
		return ExpiryResult{}, fmt.Errorf("stock expiry: pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		expired atomic.Int64
		failed  atomic.Int64
	)
	for _, id := range ids {
		id := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			_, ok, err := j.Sweeper.ExpireBatch(ctx, chartID, id, asOf)
			switch {
			case err != nil:
				failed.Add(1)
				j.log().Warn("expire batch failed", slog.Int64("batch_id", id), slog.Any("error", err))
			case ok:
				expired.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			failed.Add(1)
			j.log().Warn("expire batch not scheduled", slog.Int64("batch_id", id), slog.Any("error", submitErr))
		}
	}
	wg.Wait()

	res := ExpiryResult{Expired: int(expired.Load()), Failed: int(failed.Load())}
	j.Metrics.AddItems(TaskStockExpiry, "expired", res.Expired)
	j.Metrics.AddItems(TaskStockExpiry, "failed", res.Failed)
	j.log().Info("stock expiry finished",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("expired", res.Expired),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (j *StockExpiryJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
