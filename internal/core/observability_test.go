package core

import (
	"context"
	"fmt"
	"encoding/json"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "raceview_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	rec.Observe(context.Background(), "reload", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "reload", false, time.Millisecond)
	rec.Observe(context.Background(), "derive_view", true, 0)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	stats := rec.Stats()
	if len(stats) != 2 {
		t.Fatalf("empty operation should be ignored: %+v", stats)
	}
	if got := stats["reload"]; got.Success != 1 || got.Error != 1 || got.TotalMS < 3 {
		t.Fatalf("unexpected reload stats %+v", got)
	}

	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("recorder not published")
	}
	var decoded map[string]map[string]float64
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded["reload"]["success"] != 1 || decoded["derive_view"]["success"] != 1 {
		t.Fatalf("expvar output mismatch %+v", decoded)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "reload", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "reload", false, 10*time.Millisecond)
	rec.Observe(context.Background(), "reload", true, 10*time.Millisecond)
	if got := testutil.ToFloat64(rec.results.WithLabelValues("reload", "success")); got != 2 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("reload", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register should reuse collectors: %v", err)
	}
	again.Observe(context.Background(), "reload", true, time.Millisecond)
	if got := testutil.ToFloat64(rec.results.WithLabelValues("reload", "success")); got != 3 {
		t.Fatalf("shared collector count = %v", got)
	}
}

func TestMultiMetricsRecorder(t *testing.T) {
	a, b := &captureMetricsRecorder{}, &captureMetricsRecorder{}
	m := MultiMetricsRecorder(a, nil, b)
	m.Observe(context.Background(), "op", true, 0)
	if !a.has("op", true) || !b.has("op", true) {
		t.Fatalf("observation not fanned out")
	}
}

func TestJSONTracer(t *testing.T) {
	var sb strings.Builder
	tr := NewJSONTracer(&sb)
	_, span := tr.Start(context.Background(), "reload")
	span.End(errBoom)
	recent := tr.Recent()
	if len(recent) != 1 || recent[0].Outcome != "error" || recent[0].Error != "boom" {
		t.Fatalf("unexpected spans %+v", recent)
	}
	if !strings.Contains(sb.String(), `"outcome":"error"`) {
		t.Fatalf("span not written: %s", sb.String())
	}

	silent := NewJSONTracer(nil)
	_, span = silent.Start(context.Background(), "x")
	span.End(nil)
	if silent.Recent()[0].Outcome != "success" {
		t.Fatalf("expected success span")
	}
}

func TestJSONTracerKeepsNewestSpans(t *testing.T) {
	tr := NewJSONTracer(nil)
	total := TraceHistory + 5
	for i := 0; i < total; i++ {
		_, span := tr.Start(context.Background(), fmt.Sprintf("op%d", i))
		span.End(nil)
	}
	recent := tr.Recent()
	if len(recent) != TraceHistory {
		t.Fatalf("kept %d spans, want %d", len(recent), TraceHistory)
	}
	if recent[0].Operation != "op5" || recent[len(recent)-1].Operation != fmt.Sprintf("op%d", total-1) {
		t.Fatalf("wrong window: first %s last %s", recent[0].Operation, recent[len(recent)-1].Operation)
	}
}
