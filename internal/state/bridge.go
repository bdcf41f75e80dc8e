// Package state is the observable surface a dashboard polls or subscribes
// to: a loading flag, the published flood points and the last error.
//
// Prediction runs are asynchronous. When runs overlap, the most recently
// started one wins: completions of older runs are reported to sinks but
// never change the published state.
package state

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const sinkTimeout = 10 * time.Second

// Predictor produces a classified result for the whole dataset.
type Predictor interface {
	RunBatchPrediction(ctx context.Context) (domain.PredictionResult, error)
}

// RunSink receives a report for every completed run.
type RunSink interface {
	Publish(ctx context.Context, report domain.RunReport) error
}

// Snapshot is the published state at one point in time.
type Snapshot struct {
	Loading   bool                `json:"loading"`
	Points    []domain.Coordinate `json:"points"`
	Error     string              `json:"error,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type namedSink struct {
	name string
	sink RunSink
}

// Bridge runs predictions in the background and publishes their outcome.
type Bridge struct {
	predictor Predictor
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	sinks     []namedSink

	mu      sync.Mutex
	state   Snapshot
	latest  string
	subs    map[int]chan Snapshot
	nextSub int

	inflight sync.WaitGroup
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithClock sets the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithSink adds a run sink. name labels sink failures in metrics and logs.
func WithSink(name string, sink RunSink) Option {
	return func(b *Bridge) { b.sinks = append(b.sinks, namedSink{name: name, sink: sink}) }
}

// NewBridge creates a Bridge with no published points.
func NewBridge(p Predictor, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Bridge {
	b := &Bridge{
		predictor: p,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = observability.NewUnregisteredMetrics()
	}
	b.state.UpdatedAt = b.clock.Now()
	return b
}

// RunPrediction starts a prediction in the background and returns its id and
// a channel that is closed once the run has finished and been reported.
// The loading flag is set before RunPrediction returns.
func (b *Bridge) RunPrediction(ctx context.Context) (string, <-chan struct{}) {
	id := uuid.NewString()
	done := make(chan struct{})

	b.mu.Lock()
	b.latest = id
	b.state.Loading = true
	b.state.RequestID = id
	b.state.UpdatedAt = b.clock.Now()
	b.broadcastLocked()
	b.mu.Unlock()

	b.inflight.Add(1)
	go func() {
		defer close(done)
		defer b.inflight.Done()
		b.run(ctx, id)
	}()
	return id, done
}

func (b *Bridge) run(ctx context.Context, id string) {
	started := b.clock.Now()
	result, err := b.predictor.RunBatchPrediction(ctx)
	finished := b.clock.Now()
	b.metrics.PredictionRunDuration.Observe(finished.Sub(started).Seconds())

	report := domain.RunReport{ID: id, StartedAt: started, FinishedAt: finished}
	if err != nil {
		report.Err = err.Error()
	} else {
		report.Result = &result
	}

	b.mu.Lock()
	stale := id != b.latest
	if !stale {
		b.state.Loading = false
		b.state.UpdatedAt = finished
		if err != nil {
			// Previously published points stay visible.
			b.state.Error = err.Error()
		} else {
			b.state.Error = ""
			b.state.Points = domain.Coordinates(result.Positives)
		}
		b.broadcastLocked()
	}
	b.mu.Unlock()

	switch {
	case stale:
		b.metrics.PredictionRuns.WithLabelValues("stale").Inc()
		b.logger.Info("discarding stale prediction run", "request_id", id, "error", err)
	case err != nil:
		b.metrics.PredictionRuns.WithLabelValues("error").Inc()
		b.logger.Error("prediction run failed", "request_id", id, "error", err)
	default:
		b.metrics.PredictionRuns.WithLabelValues("success").Inc()
		b.metrics.FloodPoints.Set(float64(len(result.Positives)))
		b.logger.Info("prediction run complete",
			"request_id", id,
			"flood_points", len(result.Positives),
			"duration", report.Duration(),
		)
	}

	b.report(context.WithoutCancel(ctx), report)
}

func (b *Bridge) report(ctx context.Context, report domain.RunReport) {
	for _, s := range b.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := s.sink.Publish(sctx, report); err != nil {
			b.metrics.SinkErrors.WithLabelValues(s.name).Inc()
			b.logger.Warn("run sink failed", "sink", s.name, "request_id", report.ID, "error", err)
		}
		cancel()
	}
}

// ClearResults empties the published points and error text.
func (b *Bridge) ClearResults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Points = nil
	b.state.Error = ""
	b.state.UpdatedAt = b.clock.Now()
	b.metrics.FloodPoints.Set(0)
	b.broadcastLocked()
}

// Snapshot returns a copy of the published state.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

func (b *Bridge) copyLocked() Snapshot {
	s := b.state
	s.Points = slices.Clone(b.state.Points)
	if s.Points == nil {
		s.Points = []domain.Coordinate{}
	}
	return s
}

// Subscribe returns a channel carrying the current state followed by every
// change. Slow subscribers only see the most recent state. cancel releases
// the subscription and closes the channel.
func (b *Bridge) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.copyLocked()
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

func (b *Bridge) broadcastLocked() {
	for _, ch := range b.subs {
		s := b.copyLocked()
		select {
		case ch <- s:
			continue
		default:
		}
		// Replace the unread value with the newer one.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Wait blocks until all started runs have finished or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
