package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactNotFound means an artifact path does not exist. Fatal for the
	// classifier, recoverable for the scaler.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactLoad means an artifact exists but could not be decoded.
	ErrArtifactLoad = errors.New("artifact load failed")

	// ErrModelNotLoaded is returned when a prediction is attempted before a
	// classifier has been loaded successfully.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInvalidConfig rejects bad batch sizes and thresholds.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrShapeMismatch signals that predictions and coordinates no longer line
	// up row for row. It should never happen in correct operation.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrPredictionFailed is matched by every PredictionError.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrUnknownRegency is returned for regency names outside the table.
	ErrUnknownRegency = errors.New("unknown regency")

	// ErrRunNotFound is returned for run ids missing from the run history.
	ErrRunNotFound = errors.New("run not found")
)

// PredictionError reports the step at which a prediction aborted together
// with the underlying cause. It matches both ErrPredictionFailed and the cause
// under errors.Is.
type PredictionError struct {
	Step string
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed at %s: %v", e.Step, e.Err)
}

func (e *PredictionError) Unwrap() []error {
	return []error{ErrPredictionFailed, e.Err}
}

// NewPredictionError wraps err with the failing step. An error that already
// carries a PredictionError is returned unchanged so the innermost step wins.
func NewPredictionError(step string, err error) error {
	var pe *PredictionError
	if errors.As(err, &pe) {
		return err
	}
	return &PredictionError{Step: step, Err: err}
}
