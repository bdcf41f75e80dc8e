// Package model holds the process-wide classifier registry: it loads the
// classifier artifact at most once per path and serves concurrent, batched
// predictions against it.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
)

// Defaults applied to a new Registry.
const (
	DefaultBatchSize = 32
	DefaultThreshold = 0.5
)

// State is the lifecycle position of the registry's classifier.
type State int32

const (
	Unloaded State = iota
	Loading
	Loaded
	LoadFailed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "load_failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LoadFunc reads a classifier artifact from path.
type LoadFunc func(path string) (*domain.ModelArtifact, error)

// Registry owns the loaded classifier together with its batching and
// thresholding configuration. It is safe for concurrent use: loading holds
// the write lock, predictions only snapshot state under the read lock.
type Registry struct {
	load    LoadFunc
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	artifact  *domain.ModelArtifact
	batchSize int
	threshold float64
	lastErr   error

	// state is written under mu but read without it, so a caller can observe
	// Loading while another goroutine holds the write lock.
	state atomic.Int32
}

// Option customises a Registry at construction.
type Option func(*Registry)

// WithLoader replaces the artifact loader.
func WithLoader(load LoadFunc) Option {
	return func(r *Registry) { r.load = load }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics the registry reports to.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an unloaded registry with default batch size and threshold.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		load:      artifact.LoadClassifier,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observability.NewUnregisteredMetrics()
	}
	return r
}

var (
	sharedOnce sync.Once
	shared     *Registry
)

// Instance returns the process-wide registry. The first call constructs it
// with opts; later calls ignore opts and return the same pointer. Prefer
// passing the returned registry explicitly rather than calling Instance from
// deep inside other packages.
func Instance(opts ...Option) *Registry {
	sharedOnce.Do(func() {
		shared = NewRegistry(opts...)
	})
	return shared
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// IsLoaded reports whether a classifier is present and marked loaded.
func (r *Registry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedLocked()
}

func (r *Registry) loadedLocked() bool {
	return r.artifact != nil && r.State() == Loaded
}

// LastError returns the error of the most recent failed load, if any.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// CheckReadiness returns nil once a classifier is loaded.
func (r *Registry) CheckReadiness(_ context.Context) error {
	if !r.IsLoaded() {
		return domain.ErrModelNotLoaded
	}
	return nil
}

// LoadIfNeeded loads the classifier at path unless it is already loaded from
// the same path. Callers arriving while a load is in progress block until it
// completes and then re-check, so each path is loaded once. A failed load
// leaves the registry unloaded and may be retried.
func (r *Registry) LoadIfNeeded(path string) error {
	if r.loadedFrom(path) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadedLocked() && r.artifact.Path == path {
		return nil
	}

	r.state.Store(int32(Loading))
	r.logger.Info("loading model", "path", path)
	start := time.Now()

	a, err := r.loadArtifact(path)
	if err != nil {
		r.state.Store(int32(LoadFailed))
		r.artifact = nil
		r.lastErr = err
		r.metrics.ModelLoads.WithLabelValues("error").Inc()
		r.metrics.ModelLoaded.Set(0)
		r.logger.Error("model load failed", "path", path, "error", err)
		r.state.Store(int32(Unloaded))
		return err
	}

	r.artifact = a
	r.lastErr = nil
	r.state.Store(int32(Loaded))
	r.metrics.ModelLoads.WithLabelValues("success").Inc()
	r.metrics.ModelLoaded.Set(1)
	r.logger.Info("model loaded",
		"path", path,
		"kind", a.Kind,
		"input_shape", a.InputShape,
		"duration", time.Since(start),
	)
	return nil
}

// loadArtifact runs the loader, turning a panic or an artifact without a
// classifier into ErrArtifactLoad.
func (r *Registry) loadArtifact(path string) (a *domain.ModelArtifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			a = nil
			err = fmt.Errorf("%w: %s: loader panic: %v", domain.ErrArtifactLoad, path, p)
		}
	}()

	a, err = r.load(path)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Classifier == nil {
		return nil, fmt.Errorf("%w: %s: no classifier", domain.ErrArtifactLoad, path)
	}
	return a, nil
}

func (r *Registry) loadedFrom(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedLocked() && r.artifact.Path == path
}

// SetBatchSize changes the chunk size used by subsequent predictions.
func (r *Registry) SetBatchSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: batch size must be a positive integer, got %d", domain.ErrInvalidConfig, n)
	}
	r.mu.Lock()
	r.batchSize = n
	r.mu.Unlock()
	return nil
}

// BatchSize returns the current chunk size.
func (r *Registry) BatchSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batchSize
}

// SetThreshold changes the decision boundary used by subsequent predictions.
// A score equal to the threshold is classified as a flood.
func (r *Registry) SetThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold must be within [0, 1], got %v", domain.ErrInvalidConfig, t)
	}
	r.mu.Lock()
	r.threshold = t
	r.mu.Unlock()
	return nil
}

// Threshold returns the current decision boundary.
func (r *Registry) Threshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// Info describes the registry for status endpoints.
type Info struct {
	Status      string   `json:"status"`
	Path        string   `json:"path,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Features    []string `json:"features,omitempty"`
	InputShape  []int    `json:"input_shape,omitempty"`
	OutputShape []int    `json:"output_shape,omitempty"`
	BatchSize   int      `json:"batch_size"`
	Threshold   float64  `json:"threshold"`
	LastError   string   `json:"last_error,omitempty"`
}

// Info returns a snapshot of the loaded model and configuration.
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := Info{
		Status:    "not_loaded",
		BatchSize: r.batchSize,
		Threshold: r.threshold,
	}
	if r.lastErr != nil {
		info.LastError = r.lastErr.Error()
	}
	if !r.loadedLocked() {
		return info
	}
	info.Status = "loaded"
	info.Path = r.artifact.Path
	info.Kind = r.artifact.Kind
	info.Features = r.artifact.Features
	info.InputShape = r.artifact.InputShape
	info.OutputShape = r.artifact.OutputShape
	return info
}

// Predict classifies every row of features, preserving row order.
func (r *Registry) Predict(ctx context.Context, features domain.Matrix) ([]domain.Label, error) {
	scores, threshold, err := r.scores(ctx, features)
	if err != nil {
		return nil, err
	}
	return Threshold(scores, threshold), nil
}

// Scores returns the raw classifier scores for features, preserving row order.
func (r *Registry) Scores(ctx context.Context, features domain.Matrix) ([]float64, error) {
	scores, _, err := r.scores(ctx, features)
	return scores, err
}

func (r *Registry) scores(ctx context.Context, features domain.Matrix) ([]float64, float64, error) {
	r.mu.RLock()
	if !r.loadedLocked() {
		r.mu.RUnlock()
		return nil, 0, domain.ErrModelNotLoaded
	}
	clf := r.artifact.Classifier
	batchSize := r.batchSize
	threshold := r.threshold
	r.mu.RUnlock()

	start := time.Now()
	defer func() { r.metrics.InferenceDuration.Observe(time.Since(start).Seconds()) }()

	rows := features.Rows
	scores := make([]float64, 0, len(rows))
	for from := 0; from < len(rows); from += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, domain.NewPredictionError("inference", err)
		}
		to := min(from+batchSize, len(rows))
		chunk := rows[from:to]

		out, err := runBatch(ctx, clf, chunk)
		if err != nil {
			return nil, 0, domain.NewPredictionError("inference", err)
		}
		if err := domain.CheckRows("scores", len(chunk), len(out)); err != nil {
			return nil, 0, domain.NewPredictionError("inference", fmt.Errorf("batch at row %d: %w", from, err))
		}

		r.metrics.InferenceBatches.Inc()
		r.metrics.InferenceBatchSize.Observe(float64(len(chunk)))
		scores = append(scores, out...)
	}
	return scores, threshold, nil
}

// runBatch converts a classifier panic into an error so one bad batch cannot
// take down the request handler.
func runBatch(ctx context.Context, clf domain.Classifier, rows [][]float64) (scores []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("classifier panic: %v", p)
		}
	}()
	scores, err = clf.Predict(ctx, rows)
	if err == nil && scores == nil && len(rows) > 0 {
		err = errors.New("classifier returned no scores")
	}
	return scores, err
}

// Threshold maps scores to labels: score >= threshold is a flood.
func Threshold(scores []float64, threshold float64) []domain.Label {
	labels := make([]domain.Label, len(scores))
	for i, s := range scores {
		if s >= threshold {
			labels[i] = domain.LabelFlood
		}
	}
	return labels
}
