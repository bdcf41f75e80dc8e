package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/model"
	"github.com/couchcryptid/floodsense-service/internal/prediction"
	"github.com/couchcryptid/floodsense-service/internal/state"
	"github.com/couchcryptid/floodsense-service/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakePredictions struct {
	mu      sync.Mutex
	snap    state.Snapshot
	cleared bool
	ctx     context.Context
}

func (f *fakePredictions) RunPrediction(ctx context.Context) (string, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = ctx
	done := make(chan struct{})
	close(done)
	return "run-42", done
}

func (f *fakePredictions) ClearResults() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
}

func (f *fakePredictions) Snapshot() state.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeEvaluator struct {
	eval prediction.Evaluation
	err  error
}

func (f fakeEvaluator) Evaluate(context.Context) (prediction.Evaluation, error) { return f.eval, f.err }

type fakeModel struct{ info model.Info }

func (f fakeModel) Info() model.Info { return f.info }

type fakeGroundTruth struct {
	points []domain.ClassifiedPoint
	err    error
}

func (f fakeGroundTruth) GroundTruth() ([]domain.ClassifiedPoint, error) { return f.points, f.err }

type fakeWeather struct{}

func (fakeWeather) Dashboard(_ context.Context, name string) (weather.Report, error) {
	r, err := domain.LookupRegency(name)
	if err != nil {
		return weather.Report{}, err
	}
	return weather.Report{Regency: r, Current: domain.CurrentWeather{Regency: r.Name, Fallback: true}}, nil
}

type fakeHistory struct {
	limit  int
	runs   []domain.RunSummary
	points map[string][]domain.Coordinate
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]domain.RunSummary, error) {
	f.limit = limit
	return f.runs, nil
}

func (f *fakeHistory) Points(_ context.Context, id string) ([]domain.Coordinate, error) {
	points, ok := f.points[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return points, nil
}

func testDeps() httpadapter.Deps {
	return httpadapter.Deps{
		Ready: &mockReadiness{},
		Predictions: &fakePredictions{snap: state.Snapshot{
			Points:    []domain.Coordinate{{Lat: -5.1, Lon: 119.4}, {Lat: -4.5, Lon: 120.25}},
			RequestID: "run-41",
		}},
		Evaluator:   fakeEvaluator{eval: prediction.Evaluation{Rows: 4, Accuracy: 0.5}},
		Model:       fakeModel{info: model.Info{Status: "loaded", BatchSize: 32, Threshold: 0.5}},
		GroundTruth: fakeGroundTruth{points: []domain.ClassifiedPoint{{Lat: 1, Lon: 2, Label: domain.LabelFlood}}},
		Weather:     fakeWeather{},
	}
}

func serve(t *testing.T, deps httpadapter.Deps, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	srv := httpadapter.NewServer(":0", deps, slog.Default())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	deps := testDeps()
	deps.Ready = httpadapter.ReadinessChecks{&mockReadiness{}, &mockReadiness{err: fmt.Errorf("model not loaded")}}

	rec := serve(t, deps, http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "model not loaded", body["error"])
}

func TestReadyzReturns200WhenAllReady(t *testing.T) {
	deps := testDeps()
	deps.Ready = httpadapter.ReadinessChecks{&mockReadiness{}, &mockReadiness{}}

	rec := serve(t, deps, http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartPrediction_Accepted(t *testing.T) {
	deps := testDeps()
	deps.PredictionTimeout = time.Minute
	preds := deps.Predictions.(*fakePredictions)

	rec := serve(t, deps, http.MethodPost, "/api/v1/predictions")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "run-42", decode[map[string]string](t, rec)["id"])

	preds.mu.Lock()
	defer preds.mu.Unlock()
	_, hasDeadline := preds.ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestSnapshot(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/predictions")

	assert.Equal(t, http.StatusOK, rec.Code)
	snap := decode[state.Snapshot](t, rec)
	assert.Equal(t, "run-41", snap.RequestID)
	assert.Len(t, snap.Points, 2)
	assert.False(t, snap.Loading)
}

func TestClear(t *testing.T) {
	deps := testDeps()

	rec := serve(t, deps, http.MethodDelete, "/api/v1/predictions")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, deps.Predictions.(*fakePredictions).cleared)
}

func TestGeoJSON_LonLatOrder(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/predictions/geojson")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{119.4, -5.1}, fc.Features[0].Geometry.Coordinates)
}

func TestCSV(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/predictions/csv")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "lat,lon\n-5.1,119.4\n-4.5,120.25\n", rec.Body.String())
}

func TestCSV_EmptyHasHeader(t *testing.T) {
	deps := testDeps()
	deps.Predictions = &fakePredictions{}

	rec := serve(t, deps, http.MethodGet, "/api/v1/predictions/csv")

	assert.Equal(t, "lat,lon\n", rec.Body.String())
}

func TestHistory_NotConfigured(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/predictions/history")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	deps := testDeps()
	history := &fakeHistory{runs: []domain.RunSummary{{ID: "run-1", Succeeded: true, FloodPoints: 3}}}
	deps.History = history

	rec := serve(t, deps, http.MethodGet, "/api/v1/predictions/history?limit=5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.limit)
	runs := decode[[]domain.RunSummary](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestHistory_BadLimit(t *testing.T) {
	deps := testDeps()
	deps.History = &fakeHistory{}

	rec := serve(t, deps, http.MethodGet, "/api/v1/predictions/history?limit=abc")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunPoints(t *testing.T) {
	deps := testDeps()
	deps.History = &fakeHistory{points: map[string][]domain.Coordinate{
		"run-1": {{Lat: -5.1, Lon: 119.4}},
	}}

	rec := serve(t, deps, http.MethodGet, "/api/v1/predictions/history/run-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.Coordinate{{Lat: -5.1, Lon: 119.4}}, decode[[]domain.Coordinate](t, rec))
}

func TestRunPoints_UnknownRun(t *testing.T) {
	deps := testDeps()
	deps.History = &fakeHistory{}

	rec := serve(t, deps, http.MethodGet, "/api/v1/predictions/history/run-404")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "run-404")
}

func TestRunPoints_NotConfigured(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/predictions/history/run-1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroundTruth(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/ground-truth")

	assert.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]domain.ClassifiedPoint](t, rec)
	assert.Equal(t, []domain.ClassifiedPoint{{Lat: 1, Lon: 2, Label: domain.LabelFlood}}, points)
}

func TestGroundTruth_DatasetError(t *testing.T) {
	deps := testDeps()
	deps.GroundTruth = fakeGroundTruth{err: fmt.Errorf("load dataset: %w", domain.ErrArtifactNotFound)}

	rec := serve(t, deps, http.MethodGet, "/api/v1/ground-truth")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestModelInfo(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/model")

	assert.Equal(t, http.StatusOK, rec.Code)
	info := decode[model.Info](t, rec)
	assert.Equal(t, "loaded", info.Status)
	assert.Equal(t, 32, info.BatchSize)
}

func TestEvaluation(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/evaluation")

	assert.Equal(t, http.StatusOK, rec.Code)
	eval := decode[prediction.Evaluation](t, rec)
	assert.Equal(t, 4, eval.Rows)
	assert.InDelta(t, 0.5, eval.Accuracy, 1e-9)
}

func TestEvaluation_ModelNotLoadedIs503(t *testing.T) {
	deps := testDeps()
	deps.Evaluator = fakeEvaluator{err: domain.NewPredictionError(prediction.StepModel, domain.ErrModelNotLoaded)}

	rec := serve(t, deps, http.MethodGet, "/api/v1/evaluation")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "model not loaded")
}

func TestEvaluation_OtherErrorIs500(t *testing.T) {
	deps := testDeps()
	deps.Evaluator = fakeEvaluator{err: errors.New("boom")}

	rec := serve(t, deps, http.MethodGet, "/api/v1/evaluation")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRegencies(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/regencies")

	assert.Equal(t, http.StatusOK, rec.Code)
	regencies := decode[[]domain.Regency](t, rec)
	assert.Len(t, regencies, len(domain.Regencies()))
}

func TestWeather(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/weather/Makassar")

	assert.Equal(t, http.StatusOK, rec.Code)
	report := decode[weather.Report](t, rec)
	assert.Equal(t, "Makassar", report.Regency.Name)
	assert.True(t, report.Current.Fallback)
}

func TestWeather_UnknownRegencyIs404(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/api/v1/weather/Atlantis")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
