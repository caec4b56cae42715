package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("sale", "posted")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `ledger_postings_total{outcome="posted",source="sale"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/test", "418")))
}

func TestLedgerObservers(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDeduction("ok", 2)
	metrics.ObserveDeduction("insufficient", 0)
	metrics.ObserveCheckout("ok", 40*time.Millisecond)
	metrics.IntegrityViolation("trial_balance")

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.deductions.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.deductions.WithLabelValues("insufficient")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.integrity.WithLabelValues("trial_balance")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.checkouts))

	var nilMetrics *Metrics
	require.NotPanics(t, func() {
		nilMetrics.ObservePosting("sale", "posted")
		nilMetrics.ObserveCheckout("ok", time.Second)
	})
}
