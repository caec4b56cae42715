package accounts

import "context"

type chartKey struct{}

// WithChart pins the chart used by orchestrators called with a zero chart id.
func WithChart(ctx context.Context, chartID int64) context.Context {
	return context.WithValue(ctx, chartKey{}, chartID)
}

// ChartFromContext returns the chart pinned by WithChart.
func ChartFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(chartKey{}).(int64)
	return id, ok && id > 0
}
