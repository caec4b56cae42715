package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity checks trial balance totals and the balance sheet
	// equation of every chart.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskStockExpiry writes off batches that expired.
	TaskStockExpiry = "stock:expiry"
)

// GLIntegrityPayload scopes an integrity run. ChartID zero checks every
// chart; AsOf empty checks as of the run time.
type GLIntegrityPayload struct {
	ChartID int64  `json:"chart_id,omitempty"`
	AsOf    string `json:"as_of,omitempty"`
}

// StockExpiryPayload scopes an expiry sweep. ChartID zero posts to the
// active chart.
type StockExpiryPayload struct {
	ChartID int64  `json:"chart_id,omitempty"`
	AsOf    string `json:"as_of,omitempty"`
}

// NewGLIntegrityTask builds the integrity task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// NewStockExpiryTask builds the expiry sweep task.
func NewStockExpiryTask(payload StockExpiryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockExpiry, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewTaskByName builds a task with an empty payload for manual triggers.
func NewTaskByName(name string) (*asynq.Task, error) {
	switch name {
	case TaskGLIntegrity, "gl_integrity":
		return NewGLIntegrityTask(GLIntegrityPayload{})
	case TaskStockExpiry, "stock_expiry":
		return NewStockExpiryTask(StockExpiryPayload{})
	}
	return nil, fmt.Errorf("jobs: %w", shared.Invalid("task", "unknown task %q", name))
}

// parseAsOf reads a YYYY-MM-DD date, defaulting to now.
func parseAsOf(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("jobs: as_of %q: %w", raw, err)
	}
	return day, nil
}
