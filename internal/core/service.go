package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"raceview/internal/infra/persistence/memory"
	"raceview/pkg/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

type serviceOptions struct {
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	prefs   domain.PreferenceStore
	refresh time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer wrapped around each operation.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPreferenceStore sets where visitor preferences are kept. Without it the
// service uses an in-memory store.
func WithPreferenceStore(s domain.PreferenceStore) ServiceOption {
	return func(o *serviceOptions) { o.prefs = s }
}

// WithRefreshInterval makes Start reload the dataset periodically.
func WithRefreshInterval(d time.Duration) ServiceOption {
	return func(o *serviceOptions) { o.refresh = d }
}

// Service is the facade adapters use: it owns the dataset loader and the
// preference store, and observes every operation. Safe for concurrent use.
type Service struct {
	loader  *Loader
	prefs   domain.PreferenceStore
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	refresh time.Duration
}

// NewService constructs a service reading the dataset from source.
func NewService(source Source, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.prefs == nil {
		o.prefs = memory.NewStore()
	}
	loader := NewLoader(source, o.logger.Named("loader"), o.metrics)
	loader.now = o.clock.Now
	return &Service{
		loader:  loader,
		prefs:   o.prefs,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		clock:   o.clock,
		refresh: o.refresh,
	}
}

// run wraps an operation with a span and a metrics observation.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Debug("operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// Snapshot returns the current dataset snapshot.
func (s *Service) Snapshot() Snapshot { return s.loader.Snapshot() }

// Source describes where the dataset is loaded from.
func (s *Service) Source() string { return s.loader.Snapshot().Source }

// Reload loads the dataset synchronously. The returned snapshot is the one in
// effect afterwards, which is a newer one when this load turned out stale.
func (s *Service) Reload(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.run(ctx, "reload", func(ctx context.Context) error {
		var err error
		snap, err = s.loader.Load(ctx)
		return err
	})
	return snap, err
}

// NewController returns a controller over the current snapshot.
func (s *Service) NewController(state ViewState, r Renderer) *Controller {
	var c *Controller
	_ = s.run(context.Background(), "derive_view", func(context.Context) error {
		c = NewController(s.Snapshot(), state, r)
		return nil
	})
	return c
}

// Record returns the record at dataset index for a row action, along with the
// snapshot it was read from.
func (s *Service) Record(index int) (domain.Record, Snapshot, error) {
	snap := s.Snapshot()
	var rec domain.Record
	err := s.run(context.Background(), "record", func(context.Context) error {
		var ok bool
		if rec, ok = snap.Dataset.At(index); !ok {
			return ErrRecordNotFound{Index: index}
		}
		return nil
	})
	return rec, snap, err
}

// Preferences returns the stored preferences for visitorID. found is false
// when nothing is stored and the defaults were returned.
func (s *Service) Preferences(ctx context.Context, visitorID string) (prefs domain.Preferences, found bool, err error) {
	err = s.run(ctx, "preferences_get", func(ctx context.Context) error {
		var gerr error
		prefs, found, gerr = s.prefs.Get(ctx, visitorID)
		return gerr
	})
	if err != nil || !found {
		return domain.DefaultPreferences(), false, err
	}
	return prefs.Normalize(), true, nil
}

// SavePreferences stores prefs for visitorID.
func (s *Service) SavePreferences(ctx context.Context, visitorID string, prefs domain.Preferences) (domain.Preferences, error) {
	prefs = prefs.Normalize()
	err := s.run(ctx, "preferences_put", func(ctx context.Context) error {
		return s.prefs.Put(ctx, visitorID, prefs)
	})
	return prefs, err
}

// ToggleTheme flips the visitor's theme starting from current and stores it.
func (s *Service) ToggleTheme(ctx context.Context, visitorID string, current domain.Preferences) (domain.Preferences, error) {
	next := current.Normalize()
	next.Theme = next.Theme.Toggle()
	return s.toggle(ctx, "toggle_theme", visitorID, next)
}

// ToggleLanguage flips the visitor's language starting from current and stores it.
func (s *Service) ToggleLanguage(ctx context.Context, visitorID string, current domain.Preferences) (domain.Preferences, error) {
	next := current.Normalize()
	next.Language = next.Language.Toggle()
	return s.toggle(ctx, "toggle_language", visitorID, next)
}

func (s *Service) toggle(ctx context.Context, op, visitorID string, next domain.Preferences) (domain.Preferences, error) {
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.prefs.Put(ctx, visitorID, next); err != nil {
			return fmt.Errorf("store preferences: %w", err)
		}
		return nil
	})
	// The new value is still returned so callers can persist it elsewhere.
	return next, err
}

// Start begins the initial dataset load and any periodic refresh.
func (s *Service) Start(ctx context.Context) {
	s.loader.Start(ctx, s.refresh)
}

// Wait blocks until background loads started by Start have returned.
func (s *Service) Wait() { s.loader.Wait() }

// Close releases the preference store.
func (s *Service) Close() error {
	if err := s.prefs.Close(); err != nil {
		return fmt.Errorf("close preference store: %w", err)
	}
	return nil
}
