package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitProvider_ExportsToRegisterer(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	exp := tracetest.NewInMemoryExporter()
	tel, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
		TraceExporter:  exp,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(tel.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordLoad(context.Background(), "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "earshot_voice_loads") {
			found = true
		}
	}
	if !found {
		t.Error("earshot_voice_loads not exported to the registerer")
	}

	_, span := StartVoiceSpan(context.Background(), "create", 1)
	EndSpan(span, nil)
	if err := tel.TracerProvider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if got := len(exp.GetSpans()); got != 1 {
		t.Errorf("exported spans = %d, want 1", got)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInitProvider_RejectsBadRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{TraceSampleRatio: ratio}); err == nil {
			t.Errorf("ratio %v: expected error", ratio)
		}
	}
}

func TestInitProvider_ServiceResource(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	tel, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "1.2.3",
		Registerer:     prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	attrs := tel.Resource.Set()
	for key, want := range map[attribute.Key]string{
		"service.name":    "earshot",
		"service.version": "1.2.3",
	} {
		v, ok := attrs.Value(key)
		if !ok || v.AsString() != want {
			t.Errorf("%s = %q (present %v), want %q", key, v.AsString(), ok, want)
		}
	}
	if got, want := tel.Resource.SchemaURL(), resource.Default().SchemaURL(); got != want {
		t.Errorf("schema URL = %q, want the SDK default %q", got, want)
	}
}
