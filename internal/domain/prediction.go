package domain

import "time"

// PredictionResult is the outcome of one batch prediction. All holds every
// classified row in dataset order; Positives is the flood-positive subset
// that is surfaced to the map.
type PredictionResult struct {
	All       []ClassifiedPoint
	Positives []ClassifiedPoint
}

// RunReport describes a completed prediction request. Exactly one of Result
// and Err is meaningful.
type RunReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *PredictionResult
	Err        string
}

// Succeeded reports whether the run produced a result.
func (r RunReport) Succeeded() bool { return r.Err == "" && r.Result != nil }

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// RunSummary is the flat form of a RunReport that is published and stored.
type RunSummary struct {
	ID          string    `json:"id" db:"id"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	Succeeded   bool      `json:"succeeded" db:"succeeded"`
	Error       string    `json:"error,omitempty" db:"error"`
	Rows        int       `json:"rows" db:"row_count"`
	FloodPoints int       `json:"flood_points" db:"flood_points"`
}

// Summary flattens the report.
func (r RunReport) Summary() RunSummary {
	s := RunSummary{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		DurationMS: r.Duration().Milliseconds(),
		Succeeded:  r.Succeeded(),
		Error:      r.Err,
	}
	if r.Result != nil {
		s.Rows = len(r.Result.All)
		s.FloodPoints = len(r.Result.Positives)
	}
	return s
}
