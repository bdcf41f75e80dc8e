// Package features turns the inference dataset into model-ready matrices.
//
// The dataset is loaded once per process. Coordinates and feature rows are
// always derived from the same in-memory table, so row i of Coordinates and
// row i of ScaledFeatures describe the same location.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
)

var errDatasetNotLoaded = errors.New("dataset not loaded")

// DatasetLoadFunc reads the inference dataset at path.
type DatasetLoadFunc func(path string) (domain.Matrix, error)

// ScalerLoadFunc reads a fitted scaler at path.
type ScalerLoadFunc func(path string) (*domain.ScalerArtifact, error)

// Pipeline serves coordinates and feature matrices from a cached dataset.
type Pipeline struct {
	datasetPath string
	scalerPath  string
	loadDataset DatasetLoadFunc
	loadScaler  ScalerLoadFunc
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	dataset *domain.Matrix
	source  string

	scalerOnce sync.Once
	scaler     *domain.ScalerArtifact
	scalerErr  error
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithDatasetLoader replaces the dataset reader.
func WithDatasetLoader(fn DatasetLoadFunc) Option {
	return func(p *Pipeline) { p.loadDataset = fn }
}

// WithScalerLoader replaces the scaler reader.
func WithScalerLoader(fn ScalerLoadFunc) Option {
	return func(p *Pipeline) { p.loadScaler = fn }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the metrics the pipeline reports to.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline that lazily reads datasetPath and scalerPath.
func NewPipeline(datasetPath, scalerPath string, opts ...Option) *Pipeline {
	p := &Pipeline{
		datasetPath: datasetPath,
		scalerPath:  scalerPath,
		loadDataset: artifact.LoadDataset,
		loadScaler:  artifact.LoadScaler,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observability.NewUnregisteredMetrics()
	}
	return p
}

// LoadDataset reads the dataset at path. Once any dataset is cached, later
// calls return nil without reading, even for a different path.
func (p *Pipeline) LoadDataset(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dataset != nil {
		if path != p.source {
			p.logger.Debug("dataset already cached, ignoring path", "cached", p.source, "requested", path)
		}
		return nil
	}

	m, err := p.loadDataset(path)
	if err != nil {
		p.logger.Error("dataset load failed", "path", path, "error", err)
		return err
	}
	p.dataset = &m
	p.source = path
	p.logger.Info("dataset loaded", "path", path, "rows", m.Len(), "columns", m.Width())
	return nil
}

// DatasetLoaded reports whether a dataset is cached.
func (p *Pipeline) DatasetLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dataset != nil
}

// DatasetPath returns the path of the cached dataset, or "" if none.
func (p *Pipeline) DatasetPath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// CheckReadiness returns nil once the dataset is cached.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.DatasetLoaded() {
		return errDatasetNotLoaded
	}
	return nil
}

func (p *Pipeline) data() (domain.Matrix, error) {
	p.mu.RLock()
	d := p.dataset
	p.mu.RUnlock()
	if d != nil {
		return *d, nil
	}

	if err := p.LoadDataset(p.datasetPath); err != nil {
		return domain.Matrix{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.dataset, nil
}

// Coordinates returns (lat, lon) for every dataset row in row order.
func (p *Pipeline) Coordinates() ([]domain.Coordinate, error) {
	d, err := p.data()
	if err != nil {
		return nil, err
	}
	lat, lon := d.ColumnIndex(domain.ColumnLat), d.ColumnIndex(domain.ColumnLon)

	coords := make([]domain.Coordinate, d.Len())
	for i, row := range d.Rows {
		coords[i] = domain.Coordinate{Lat: row[lat], Lon: row[lon]}
	}
	return coords, nil
}

// GroundTruth returns every dataset row as a point labelled with its target.
func (p *Pipeline) GroundTruth() ([]domain.ClassifiedPoint, error) {
	d, err := p.data()
	if err != nil {
		return nil, err
	}
	lat, lon, target := d.ColumnIndex(domain.ColumnLat), d.ColumnIndex(domain.ColumnLon), d.ColumnIndex(domain.ColumnTarget)

	points := make([]domain.ClassifiedPoint, d.Len())
	for i, row := range d.Rows {
		label := domain.LabelNoFlood
		if row[target] != 0 {
			label = domain.LabelFlood
		}
		points[i] = domain.ClassifiedPoint{Lat: row[lat], Lon: row[lon], Label: label}
	}
	return points, nil
}

// RawFeatures returns every column except lat, lon and target, unscaled.
func (p *Pipeline) RawFeatures() (domain.Matrix, error) {
	d, err := p.data()
	if err != nil {
		return domain.Matrix{}, err
	}
	return d.Select(d.Without(domain.ColumnLat, domain.ColumnLon, domain.ColumnTarget))
}

// ScaledFeatures returns every column except target, transformed by the
// fitted scaler. When the scaler is missing or rejects the matrix, the
// unscaled matrix is returned instead and the fallback is logged.
func (p *Pipeline) ScaledFeatures() (domain.Matrix, error) {
	d, err := p.data()
	if err != nil {
		return domain.Matrix{}, err
	}
	m, err := d.Select(d.Without(domain.ColumnTarget))
	if err != nil {
		return domain.Matrix{}, err
	}

	s, err := p.ensureScaler()
	if err != nil {
		return p.unscaled(m, err), nil
	}
	if len(s.Features) > 0 && !slices.Equal(s.Features, m.Columns) {
		return p.unscaled(m, fmt.Errorf("scaler fitted on %v, dataset has %v", s.Features, m.Columns)), nil
	}
	rows, err := s.Scaler.Transform(m.Rows)
	if err != nil {
		return p.unscaled(m, err), nil
	}
	if err := domain.CheckRows("scaled rows", m.Len(), len(rows)); err != nil {
		return p.unscaled(m, err), nil
	}
	return domain.Matrix{Columns: m.Columns, Rows: rows}, nil
}

func (p *Pipeline) unscaled(m domain.Matrix, cause error) domain.Matrix {
	p.metrics.ScalerFallbacks.Inc()
	p.logger.Warn("scaler unavailable, using unscaled features", "path", p.scalerPath, "error", cause)
	return m
}

// ensureScaler loads the scaler at most once. A failure is remembered and
// not retried.
func (p *Pipeline) ensureScaler() (*domain.ScalerArtifact, error) {
	p.scalerOnce.Do(func() {
		s, err := p.loadScaler(p.scalerPath)
		switch {
		case err != nil:
			p.scalerErr = err
		case s == nil || s.Scaler == nil:
			p.scalerErr = fmt.Errorf("%w: %s: no scaler", domain.ErrArtifactLoad, p.scalerPath)
		default:
			p.scaler = s
			p.logger.Info("scaler loaded", "path", p.scalerPath, "kind", s.Kind)
		}
	})
	return p.scaler, p.scalerErr
}

// ScalerActive reports whether the scaler loads successfully, attempting the
// load on first use.
func (p *Pipeline) ScalerActive() bool {
	s, err := p.ensureScaler()
	return err == nil && s != nil
}
