package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"raceview/pkg/domain"
)

// LoadStatus describes where the dataset is in its load lifecycle.
type LoadStatus string

const (
	StatusNotLoaded LoadStatus = "not_loaded"
	StatusLoading   LoadStatus = "loading"
	StatusReady     LoadStatus = "ready"
	StatusError     LoadStatus = "error"
)

// Snapshot is an immutable view of the most recently applied load.
type Snapshot struct {
	Dataset    domain.Dataset `json:"-"`
	Status     LoadStatus     `json:"status"`
	Generation uint64         `json:"generation"`
	Error      string         `json:"error,omitempty"`
	Source     string         `json:"source"`
	LoadedAt   time.Time      `json:"loaded_at,omitempty"`
}

// Count returns the number of loaded records.
func (s Snapshot) Count() int { return s.Dataset.Len() }

// Source yields the raw JSON array of race records.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Describe() string
}

// ErrStaleLoad is returned by Load when a load that started later has already
// been applied. The stale result is discarded.
var ErrStaleLoad = errors.New("stale load discarded")

// Loader fetches datasets from a Source and publishes snapshots. Loads are
// numbered when they start; a result is applied only if no later-started
// load has been applied first.
type Loader struct {
	source  Source
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	mu       sync.RWMutex
	started  uint64
	applied  uint64
	inFlight int
	current  Snapshot

	wg sync.WaitGroup
}

// NewLoader constructs a loader for source. The initial snapshot is NotLoaded.
func NewLoader(source Source, logger *zap.Logger, metrics MetricsRecorder) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:  source,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		current: Snapshot{Status: StatusNotLoaded, Source: describe(source)},
	}
}

func describe(s Source) string {
	if s == nil {
		return ""
	}
	return s.Describe()
}

// Snapshot returns the current snapshot. While a load is in flight and nothing
// has been applied yet the status is Loading.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := l.current
	if snap.Status == StatusNotLoaded && l.inFlight > 0 {
		snap.Status = StatusLoading
	}
	return snap
}

// Load fetches and decodes the dataset once. A failed load still publishes an
// Error snapshot (with an empty dataset) unless it is stale.
func (l *Loader) Load(ctx context.Context) (Snapshot, error) {
	return l.run(ctx, l.begin())
}

// begin numbers a new load and marks it in flight.
func (l *Loader) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
	l.inFlight++
	return l.started
}

func (l *Loader) run(ctx context.Context, seq uint64) (Snapshot, error) {
	start := l.now()
	ds, err := l.fetch(ctx)

	l.mu.Lock()
	l.inFlight--
	if seq < l.applied {
		current := l.current
		l.mu.Unlock()
		l.logger.Info("discarding stale dataset load",
			zap.Uint64("load", seq),
			zap.Uint64("applied", current.Generation))
		l.observe(ctx, "dataset_load_stale", false, start)
		return current, ErrStaleLoad
	}
	snap := Snapshot{
		Dataset:    ds,
		Status:     StatusReady,
		Generation: seq,
		Source:     describe(l.source),
		LoadedAt:   l.now(),
	}
	if err != nil {
		snap.Dataset = domain.Dataset{}
		snap.Status = StatusError
		snap.Error = err.Error()
	}
	l.applied = seq
	l.current = snap
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("dataset load failed",
			zap.String("source", snap.Source),
			zap.Uint64("generation", seq),
			zap.Error(err))
		l.observe(ctx, "dataset_load", false, start)
		return snap, err
	}
	l.logger.Info("dataset loaded",
		zap.String("source", snap.Source),
		zap.Uint64("generation", seq),
		zap.Int("records", ds.Len()))
	l.observe(ctx, "dataset_load", true, start)
	return snap, nil
}

func (l *Loader) fetch(ctx context.Context) (domain.Dataset, error) {
	if l.source == nil {
		return nil, fmt.Errorf("no data source configured")
	}
	rc, err := l.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.source.Describe(), err)
	}
	defer func() { _ = rc.Close() }()
	ds, err := domain.DecodeDataset(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.source.Describe(), err)
	}
	return ds, nil
}

func (l *Loader) observe(ctx context.Context, op string, ok bool, start time.Time) {
	if l.metrics != nil {
		l.metrics.Observe(ctx, op, ok, l.now().Sub(start))
	}
}

// Start runs the initial load in the background and, when interval is
// positive, reloads on that interval until ctx is done.
func (l *Loader) Start(ctx context.Context, interval time.Duration) {
	seq := l.begin()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, _ = l.run(ctx, seq)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = l.Load(ctx)
			}
		}
	}()
}

// Wait blocks until goroutines started by Start have returned.
func (l *Loader) Wait() {
	l.wg.Wait()
}
