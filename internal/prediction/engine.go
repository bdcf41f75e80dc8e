// Package prediction runs the preprocess, predict and join sequence that
// turns the inference dataset into classified map points.
package prediction

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/floodsense-service/internal/domain"
)

// Steps reported in domain.PredictionError.
const (
	StepCoordinates = "coordinates"
	StepFeatures    = "features"
	StepModel       = "model"
	StepPredict     = "predict"
	StepJoin        = "join"
)

// FeatureSource supplies row-aligned coordinates and model inputs.
type FeatureSource interface {
	Coordinates() ([]domain.Coordinate, error)
	ScaledFeatures() (domain.Matrix, error)
	GroundTruth() ([]domain.ClassifiedPoint, error)
}

// Model classifies feature rows.
type Model interface {
	IsLoaded() bool
	Predict(ctx context.Context, features domain.Matrix) ([]domain.Label, error)
}

// Engine orchestrates a batch prediction over the whole dataset.
type Engine struct {
	features FeatureSource
	model    Model
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(features FeatureSource, model Model, logger *slog.Logger) *Engine {
	return &Engine{features: features, model: model, logger: logger}
}

// RunBatchPrediction classifies every dataset row. The result carries both
// the full classified set and the flood-positive subset. Any failure aborts
// the run with a *domain.PredictionError naming the step; no partial result
// is returned.
func (e *Engine) RunBatchPrediction(ctx context.Context) (domain.PredictionResult, error) {
	coords, err := e.features.Coordinates()
	if err != nil {
		return domain.PredictionResult{}, domain.NewPredictionError(StepCoordinates, err)
	}

	features, err := e.features.ScaledFeatures()
	if err != nil {
		return domain.PredictionResult{}, domain.NewPredictionError(StepFeatures, err)
	}

	if !e.model.IsLoaded() {
		return domain.PredictionResult{}, domain.NewPredictionError(StepModel, domain.ErrModelNotLoaded)
	}

	labels, err := e.model.Predict(ctx, features)
	if err != nil {
		step := StepPredict
		if errors.Is(err, domain.ErrModelNotLoaded) {
			step = StepModel
		}
		return domain.PredictionResult{}, domain.NewPredictionError(step, err)
	}

	all, err := domain.Classify(coords, labels)
	if err != nil {
		return domain.PredictionResult{}, domain.NewPredictionError(StepJoin, err)
	}

	result := domain.PredictionResult{All: all, Positives: domain.Positives(all)}
	e.logger.Info("batch prediction complete", "rows", len(all), "flood_points", len(result.Positives))
	return result, nil
}

// Evaluation compares predicted labels with the dataset target column.
type Evaluation struct {
	Rows           int     `json:"rows"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Evaluate runs a batch prediction and scores it against the ground truth.
// Ratios with an empty denominator are reported as 0.
func (e *Engine) Evaluate(ctx context.Context) (Evaluation, error) {
	result, err := e.RunBatchPrediction(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	truth, err := e.features.GroundTruth()
	if err != nil {
		return Evaluation{}, domain.NewPredictionError(StepCoordinates, err)
	}
	if err := domain.CheckRows("ground truth", len(result.All), len(truth)); err != nil {
		return Evaluation{}, domain.NewPredictionError(StepJoin, err)
	}
	return Score(result.All, truth), nil
}

// Score builds the confusion matrix of predicted against actual, row by row.
// Both slices must have the same length.
func Score(predicted, actual []domain.ClassifiedPoint) Evaluation {
	ev := Evaluation{Rows: len(predicted)}
	for i, p := range predicted {
		switch a := actual[i]; {
		case p.Flooded() && a.Flooded():
			ev.TruePositives++
		case p.Flooded():
			ev.FalsePositives++
		case a.Flooded():
			ev.FalseNegatives++
		default:
			ev.TrueNegatives++
		}
	}
	ev.Accuracy = ratio(ev.TruePositives+ev.TrueNegatives, ev.Rows)
	ev.Precision = ratio(ev.TruePositives, ev.TruePositives+ev.FalsePositives)
	ev.Recall = ratio(ev.TruePositives, ev.TruePositives+ev.FalseNegatives)
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}
	return ev
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
