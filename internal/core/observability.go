package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per completed operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// MultiMetricsRecorder fans each observation out to every non-nil recorder.
func MultiMetricsRecorder(recorders ...MetricsRecorder) MetricsRecorder {
	var out multiMetrics
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiMetrics []MetricsRecorder

func (m multiMetrics) Observe(ctx context.Context, op string, success bool, d time.Duration) {
	for _, r := range m {
		r.Observe(ctx, op, success, d)
	}
}

// PrometheusMetricsRecorder exports operation counts and latencies as
// raceview_operations_total and raceview_operation_duration_seconds.
type PrometheusMetricsRecorder struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers its collectors with reg. Collectors
// already registered under the same names are reused.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raceview",
		Name:      "operations_total",
		Help:      "Completed operations by name and result.",
	}, []string{"operation", "result"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raceview",
		Name:      "operation_duration_seconds",
		Help:      "Operation latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	var err error
	if results, err = register(reg, results); err != nil {
		return nil, err
	}
	if durations, err = register(reg, durations); err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{results: results, durations: durations}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Observe records an operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.results.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder publishes one expvar map per operation, for example
// {"reload": {"success": 3, "error": 1, "ms_total": 12.5}}, under its name
// in /debug/vars.
type ExpvarMetricsRecorder struct {
	name string
	ops  *expvar.Map
	mu   sync.Mutex
}

// OperationStats is what an ExpvarMetricsRecorder holds for one operation.
type OperationStats struct {
	Success int64
	Error   int64
	TotalMS float64
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated raceview_metrics_N name when name is empty. Publishing a name
// twice panics, as expvar.Publish does.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("raceview_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: new(expvar.Map).Init()}
	expvar.Publish(name, rec.ops)
	return rec
}

// Name is the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

func (r *ExpvarMetricsRecorder) operation(op string) *expvar.Map {
	if m, ok := r.ops.Get(op).(*expvar.Map); ok {
		return m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.ops.Get(op).(*expvar.Map); ok {
		return m
	}
	m := new(expvar.Map).Init()
	r.ops.Set(op, m)
	return m
}

// Observe counts the outcome and adds the duration. Unnamed operations are
// dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	m := r.operation(operation)
	if success {
		m.Add("success", 1)
	} else {
		m.Add("error", 1)
	}
	m.AddFloat("ms_total", float64(duration)/float64(time.Millisecond))
}

// Stats reads the published counters back.
func (r *ExpvarMetricsRecorder) Stats() map[string]OperationStats {
	out := make(map[string]OperationStats)
	r.ops.Do(func(kv expvar.KeyValue) {
		m, ok := kv.Value.(*expvar.Map)
		if !ok {
			return
		}
		var st OperationStats
		if v, ok := m.Get("success").(*expvar.Int); ok {
			st.Success = v.Value()
		}
		if v, ok := m.Get("error").(*expvar.Int); ok {
			st.Error = v.Value()
		}
		if v, ok := m.Get("ms_total").(*expvar.Float); ok {
			st.TotalMS = v.Value()
		}
		out[kv.Key] = st
	})
	return out
}

// TraceHistory is how many finished spans a JSONTracer keeps for Recent.
const TraceHistory = 64

// TraceRecord is one finished span.
type TraceRecord struct {
	Operation string    `json:"op"`
	Outcome   string    `json:"outcome"`
	Millis    float64   `json:"ms"`
	Error     string    `json:"error,omitempty"`
	Start     time.Time `json:"start"`
}

// JSONTracer writes each finished span as a JSON line and keeps the last
// TraceHistory spans in memory.
type JSONTracer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	recent []TraceRecord
	next   int
}

// NewJSONTracer writes spans to w. A nil w only keeps the recent history.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{recent: make([]TraceRecord, 0, TraceHistory)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, op: operation, start: time.Now().UTC()}
}

// Recent returns the retained spans, oldest first.
func (t *JSONTracer) Recent() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceRecord, 0, len(t.recent))
	out = append(out, t.recent[t.next:]...)
	return append(out, t.recent[:t.next]...)
}

func (t *JSONTracer) finish(rec TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
	if len(t.recent) < TraceHistory {
		t.recent = append(t.recent, rec)
		return
	}
	t.recent[t.next] = rec
	t.next = (t.next + 1) % TraceHistory
}

type jsonSpan struct {
	tracer *JSONTracer
	op     string
	start  time.Time
}

func (s *jsonSpan) End(err error) {
	rec := TraceRecord{
		Operation: s.op,
		Outcome:   "success",
		Millis:    float64(time.Since(s.start)) / float64(time.Millisecond),
		Start:     s.start,
	}
	if err != nil {
		rec.Outcome = "error"
		rec.Error = err.Error()
	}
	s.tracer.finish(rec)
}
