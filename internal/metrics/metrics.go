package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/graph"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/layer"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	edgeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rhiz_edge_writes_total",
		Help: "Edge write attempts by edge type and outcome",
	}, []string{"type", "outcome"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rhiz_messages_processed_total",
		Help: "Queue messages handled, by queue and result",
	}, []string{"queue", "result"})

	messageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rhiz_message_duration_seconds",
		Help:    "Time to handle one queue message",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"queue"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rhiz_sweep_duration_seconds",
		Help:    "Duration of scheduled sweeps",
		Buckets: []float64{0.1, 1, 10, 60, 300, 1800},
	}, []string{"sweep", "result"})

	sweepItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rhiz_sweep_items",
		Help: "Items produced by the last successful sweep",
	}, []string{"sweep"})

	layerOverCapacity = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rhiz_layer_over_capacity_total",
		Help: "Tenants found above a Dunbar layer's capacity during signal sweeps",
	}, []string{"layer"})
)

// EdgeObserver records graph builder outcomes.
type EdgeObserver struct{}

var _ graph.Observer = EdgeObserver{}

func (EdgeObserver) EdgeWritten(edgeType common.EdgeType, outcome graph.Outcome) {
	edgeWrites.WithLabelValues(string(edgeType), string(outcome)).Inc()
}

// MessageHandled records one consumed message. result is "ok", "retry" or
// "dead_letter".
func MessageHandled(queue, result string, d time.Duration) {
	messagesProcessed.WithLabelValues(queue, result).Inc()
	messageDuration.WithLabelValues(queue).Observe(d.Seconds())
}

// SweepFinished records one sweep run. items is ignored for failed runs.
func SweepFinished(sweep string, items int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sweepDuration.WithLabelValues(sweep, result).Observe(d.Seconds())
	if err == nil {
		sweepItems.WithLabelValues(sweep).Set(float64(items))
	}
}

// LayerReport counts the layers a tenant overfills.
func LayerReport(_ string, usage []layer.LayerUsage) {
	for _, u := range usage {
		if u.OverLimit {
			layerOverCapacity.WithLabelValues(u.Layer.Name).Inc()
		}
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("[Metrics] Listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("[Metrics] Server stopped", "err", err)
	}
}
