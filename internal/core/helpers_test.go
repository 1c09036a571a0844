package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"raceview/pkg/domain"
)

func mustDataset(t *testing.T, js string) domain.Dataset {
	t.Helper()
	ds, err := domain.DecodeDataset(strings.NewReader(js))
	if err != nil {
		t.Fatalf("decode dataset: %v", err)
	}
	return ds
}

func names(recs []domain.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Get(domain.FieldName)
	}
	return out
}

func readySnapshot(ds domain.Dataset) Snapshot {
	return Snapshot{Dataset: ds, Status: StatusReady, Generation: 1}
}

// staticSource serves a fixed body or error.
type staticSource struct {
	body string
	err  error
}

func (s staticSource) Open(context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func (staticSource) Describe() string { return "static" }

// gatedSource hands out one scripted response per Open, each released by
// closing its gate.
type gatedSource struct {
	mu    sync.Mutex
	calls int
	steps []gatedStep
}

type gatedStep struct {
	gate chan struct{}
	body string
	err  error
}

func (g *gatedSource) Open(ctx context.Context) (io.ReadCloser, error) {
	g.mu.Lock()
	step := g.steps[g.calls]
	g.calls++
	g.mu.Unlock()
	select {
	case <-step.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}
	return io.NopCloser(strings.NewReader(step.body)), nil
}

func (g *gatedSource) Describe() string { return "gated" }

func (g *gatedSource) opened() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

var errBoom = errors.New("boom")

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}
