package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/graph"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/layer"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEdgeObserver(t *testing.T) {
	c := edgeWrites.WithLabelValues(string(common.EdgeIntro), string(graph.OutcomeCreated))
	before := testutil.ToFloat64(c)

	EdgeObserver{}.EdgeWritten(common.EdgeIntro, graph.OutcomeCreated)
	EdgeObserver{}.EdgeWritten(common.EdgeIntro, graph.OutcomeCreated)

	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Fatalf("expected 2 increments, got %v", got)
	}
}

func TestMessageHandled(t *testing.T) {
	c := messagesProcessed.WithLabelValues("signals_queue", "retry")
	before := testutil.ToFloat64(c)

	MessageHandled("signals_queue", "retry", 20*time.Millisecond)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Fatalf("expected 1 increment, got %v", got)
	}
}

func TestSweepFinished(t *testing.T) {
	SweepFinished("overlap", 12, time.Second, nil)
	if got := testutil.ToFloat64(sweepItems.WithLabelValues("overlap")); got != 12 {
		t.Fatalf("expected 12 items, got %v", got)
	}

	SweepFinished("overlap", 0, time.Second, errors.New("db down"))
	if got := testutil.ToFloat64(sweepItems.WithLabelValues("overlap")); got != 12 {
		t.Fatalf("expected failed sweep to keep last value, got %v", got)
	}
}

func TestLayerReport(t *testing.T) {
	c := layerOverCapacity.WithLabelValues(layer.Intimate.Name)
	before := testutil.ToFloat64(c)

	LayerReport("t1", []layer.LayerUsage{
		{Layer: layer.Intimate, Count: 7, OverLimit: true},
		{Layer: layer.Close, Count: 3},
	})

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Fatalf("expected 1 increment, got %v", got)
	}
	if got := testutil.ToFloat64(layerOverCapacity.WithLabelValues(layer.Close.Name)); got != 0 {
		t.Fatalf("expected no increment for close layer, got %v", got)
	}
}
