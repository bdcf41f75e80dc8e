package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/export"
	"github.com/couchcryptid/floodsense-service/internal/model"
	"github.com/couchcryptid/floodsense-service/internal/prediction"
	"github.com/couchcryptid/floodsense-service/internal/state"
	"github.com/couchcryptid/floodsense-service/internal/weather"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Predictions starts runs and exposes their published state.
type Predictions interface {
	RunPrediction(ctx context.Context) (string, <-chan struct{})
	ClearResults()
	Snapshot() state.Snapshot
}

// Evaluator scores predictions against the dataset target column.
type Evaluator interface {
	Evaluate(ctx context.Context) (prediction.Evaluation, error)
}

// ModelInfo describes the loaded classifier.
type ModelInfo interface {
	Info() model.Info
}

// GroundTruth returns the labelled dataset rows.
type GroundTruth interface {
	GroundTruth() ([]domain.ClassifiedPoint, error)
}

// Weather builds the weather panel for a regency.
type Weather interface {
	Dashboard(ctx context.Context, regency string) (weather.Report, error)
}

// History lists recently recorded runs and the points each one published.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.RunSummary, error)
	Points(ctx context.Context, id string) ([]domain.Coordinate, error)
}

// Deps are the collaborators behind the API routes. History is optional.
type Deps struct {
	Ready             sharedobs.ReadinessChecker
	Predictions       Predictions
	Evaluator         Evaluator
	Model             ModelInfo
	GroundTruth       GroundTruth
	Weather           Weather
	History           History
	PredictionTimeout time.Duration
}

// Server exposes the flood map API alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the probe routes and the /api/v1 routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/predictions", s.handleStartPrediction)
	mux.HandleFunc("GET /api/v1/predictions", s.handleSnapshot)
	mux.HandleFunc("DELETE /api/v1/predictions", s.handleClear)
	mux.HandleFunc("GET /api/v1/predictions/geojson", s.handleGeoJSON)
	mux.HandleFunc("GET /api/v1/predictions/csv", s.handleCSV)
	mux.HandleFunc("GET /api/v1/predictions/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/predictions/history/{id}", s.handleRunPoints)
	mux.HandleFunc("GET /api/v1/ground-truth", s.handleGroundTruth)
	mux.HandleFunc("GET /api/v1/model", s.handleModel)
	mux.HandleFunc("GET /api/v1/evaluation", s.handleEvaluation)
	mux.HandleFunc("GET /api/v1/regencies", s.handleRegencies)
	mux.HandleFunc("GET /api/v1/weather/{regency}", s.handleWeather)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// The run outlives the request, so it gets its own deadline.
func (s *Server) handleStartPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	var cancel context.CancelFunc = func() {}
	if s.deps.PredictionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.deps.PredictionTimeout)
	}
	id, done := s.deps.Predictions.RunPrediction(ctx)
	go func() {
		<-done
		cancel()
	}()

	s.logger.Info("prediction requested", "request_id", id)
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Predictions.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.deps.Predictions.ClearResults()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, s.deps.Predictions.Snapshot().Points); err != nil {
		s.logger.Error("write geojson", "error", err)
	}
}

func (s *Server) handleCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="flood_points.csv"`)
	if err := export.WriteCSV(w, s.deps.Predictions.Snapshot().Points); err != nil {
		s.logger.Error("write csv", "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "run history is not configured"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunPoints(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "run history is not configured"})
		return
	}
	points, err := s.deps.History.Points(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, points)
}

func (s *Server) handleGroundTruth(w http.ResponseWriter, _ *http.Request) {
	points, err := s.deps.GroundTruth.GroundTruth()
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, points)
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Model.Info())
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, err := s.deps.Evaluator.Evaluate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, eval)
}

func (s *Server) handleRegencies(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, domain.Regencies())
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Weather.Dashboard(r.Context(), r.PathValue("regency"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUnknownRegency), errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ReadinessChecks combines several checkers; the first failure wins.
type ReadinessChecks []sharedobs.ReadinessChecker

func (c ReadinessChecks) CheckReadiness(ctx context.Context) error {
	for _, checker := range c {
		if err := checker.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
