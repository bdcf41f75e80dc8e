package domain

import "context"

// Classifier scores feature rows. Implementations must be safe for
// concurrent use once constructed; the registry never mutates them.
type Classifier interface {
	// Predict returns one score in [0, 1] per row, in row order.
	Predict(ctx context.Context, rows [][]float64) ([]float64, error)
}

// Scaler is a fitted per-column feature transform.
type Scaler interface {
	// Transform returns a new matrix of the same shape; rows is not modified.
	Transform(rows [][]float64) ([][]float64, error)
}

// ModelArtifact is a loaded classifier. Path is its identity.
type ModelArtifact struct {
	Path        string
	Kind        string
	Features    []string
	InputShape  []int // -1 marks the batch dimension
	OutputShape []int
	Classifier  Classifier
}

// ScalerArtifact is a loaded feature scaler.
type ScalerArtifact struct {
	Path     string
	Kind     string
	Features []string
	Scaler   Scaler
}
