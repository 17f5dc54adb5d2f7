package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"earshot.scheduler.tick.duration", m.TickDuration},
		{"earshot.voice.load.duration", m.LoadDuration},
		{"earshot.workqueue.slice.duration", m.SliceDuration},
		{"earshot.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.0012)
		tc.h.Record(ctx, 0.034)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

// sumFor returns the value of the data point whose attributes contain every
// key/value pair in want.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, want map[string]string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for k, v := range want {
			got, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || got.AsString() != v {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %v", name, want)
	return 0
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoad(ctx, "ok")
	m.RecordLoad(ctx, "ok")
	m.RecordLoad(ctx, "error")
	m.RecordUnload(ctx, "evicted", "ok")
	m.RecordEviction(ctx, "out_of_range")
	m.RecordEviction(ctx, "out_of_range")
	m.RecordBackendError(ctx, "destroy")
	m.RecordBreakerTransition(ctx, "voice-create", "open")

	rm := collect(t, reader)

	tests := []struct {
		name  string
		attrs map[string]string
		want  int64
	}{
		{"earshot.voice.loads", map[string]string{"status": "ok"}, 2},
		{"earshot.voice.loads", map[string]string{"status": "error"}, 1},
		{"earshot.voice.unloads", map[string]string{"reason": "evicted", "status": "ok"}, 1},
		{"earshot.scheduler.evictions", map[string]string{"reason": "out_of_range"}, 2},
		{"earshot.backend.errors", map[string]string{"op": "destroy"}, 1},
		{"earshot.breaker.transitions", map[string]string{"breaker": "voice-create", "to": "open"}, 1},
	}
	for _, tt := range tests {
		if got := sumFor(t, rm, tt.name, tt.attrs); got != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.name, tt.attrs, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.WorkJobs.Add(ctx, 3, metric.WithAttributes(attribute.String("status", "ok")))
	m.WorkJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "panic")))
	m.DispatchJobs.Add(ctx, 7)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "earshot.workqueue.jobs", map[string]string{"status": "ok"}); got != 3 {
		t.Errorf("workqueue jobs ok = %d, want 3", got)
	}
	if got := sumFor(t, rm, "earshot.workqueue.jobs", map[string]string{"status": "panic"}); got != 1 {
		t.Errorf("workqueue jobs panic = %d, want 1", got)
	}
	if got := sumFor(t, rm, "earshot.dispatch.jobs", nil); got != 7 {
		t.Errorf("dispatch jobs = %d, want 7", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TrackedEntries.Add(ctx, 12)
	m.TrackedEntries.Add(ctx, -4)
	m.ActiveVoices.Add(ctx, 3)
	m.WorkQueueDepth.Add(ctx, 2)
	m.WorkQueueDepth.Add(ctx, -2)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"earshot.entries.tracked", 8},
		{"earshot.voices.active", 3},
		{"earshot.workqueue.depth", 0},
	}
	for _, g := range gauges {
		t.Run(g.name, func(t *testing.T) {
			if got := sumFor(t, rm, g.name, nil); got != g.want {
				t.Errorf("%s = %d, want %d", g.name, got, g.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
