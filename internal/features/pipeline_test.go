package features

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleCSV = `lat,lon,rain,target,slope
-5.1,119.4,120,1,2
-4.0,120.1,10,0,8
-3.5,119.9,60,1,4
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestPipeline(t *testing.T, scalerJSON string, opts ...Option) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	dataset := writeFile(t, dir, "data.csv", sampleCSV)
	scaler := filepath.Join(dir, "scaler.json")
	if scalerJSON != "" {
		writeFile(t, dir, "scaler.json", scalerJSON)
	}
	base := []Option{WithLogger(discardLogger()), WithMetrics(observability.NewMetricsForTesting())}
	return NewPipeline(dataset, scaler, append(base, opts...)...)
}

func TestCoordinates_RowOrder(t *testing.T) {
	p := newTestPipeline(t, "")

	coords, err := p.Coordinates()
	require.NoError(t, err)

	want := []domain.Coordinate{{Lat: -5.1, Lon: 119.4}, {Lat: -4.0, Lon: 120.1}, {Lat: -3.5, Lon: 119.9}}
	if diff := cmp.Diff(want, coords); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.DatasetLoaded())
}

func TestScaledFeatures_AlignedWithCoordinates(t *testing.T) {
	p := newTestPipeline(t, `{"kind":"robust","center":[0,0,0,0],"scale":[1,1,10,1]}`)

	coords, err := p.Coordinates()
	require.NoError(t, err)
	features, err := p.ScaledFeatures()
	require.NoError(t, err)

	require.Equal(t, len(coords), features.Len())
	assert.Equal(t, []string{"lat", "lon", "rain", "slope"}, features.Columns)
	for i, c := range coords {
		assert.InDelta(t, c.Lat, features.Rows[i][0], 1e-12, "row %d", i)
		assert.InDelta(t, c.Lon, features.Rows[i][1], 1e-12, "row %d", i)
	}
	assert.InDelta(t, 12.0, features.Rows[0][2], 1e-12)
	assert.True(t, p.ScalerActive())
}

func TestScaledFeatures_MissingScalerDegradesToRaw(t *testing.T) {
	p := newTestPipeline(t, "")

	scaled, err := p.ScaledFeatures()
	require.NoError(t, err)
	raw, err := p.RawFeatures()
	require.NoError(t, err)

	assert.Equal(t, []string{"rain", "slope"}, raw.Columns)
	projected, err := scaled.Select(raw.Columns)
	require.NoError(t, err)
	if diff := cmp.Diff(raw.Rows, projected.Rows); diff != "" {
		t.Errorf("unscaled features differ from raw (-raw +scaled):\n%s", diff)
	}
	assert.False(t, p.ScalerActive())
}

func TestScaledFeatures_TransformFailureDegrades(t *testing.T) {
	// Scaler fitted on two columns cannot transform four.
	p := newTestPipeline(t, `{"kind":"standard","center":[0,0],"scale":[1,1]}`)

	scaled, err := p.ScaledFeatures()
	require.NoError(t, err)
	assert.Equal(t, []float64{-5.1, 119.4, 120, 2}, scaled.Rows[0])
}

func TestScaledFeatures_FeatureNameMismatchDegrades(t *testing.T) {
	p := newTestPipeline(t, `{"kind":"standard","features":["a","b","c","d"],"center":[0,0,0,0],"scale":[2,2,2,2]}`)

	scaled, err := p.ScaledFeatures()
	require.NoError(t, err)
	assert.Equal(t, []float64{-5.1, 119.4, 120, 2}, scaled.Rows[0])
}

func TestScaler_LoadedAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	p := newTestPipeline(t, "", WithScalerLoader(func(path string) (*domain.ScalerArtifact, error) {
		calls.Add(1)
		return artifact.LoadScaler(path)
	}))

	for range 3 {
		_, err := p.ScaledFeatures()
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadDataset_SecondPathIsNoOp(t *testing.T) {
	var calls atomic.Int32
	p := newTestPipeline(t, "", WithDatasetLoader(func(path string) (domain.Matrix, error) {
		calls.Add(1)
		return artifact.LoadDataset(path)
	}))

	_, err := p.Coordinates()
	require.NoError(t, err)
	first := p.DatasetPath()

	other := writeFile(t, t.TempDir(), "other.csv", "lat,lon,target\n9,9,1\n")
	require.NoError(t, p.LoadDataset(other))

	coords, err := p.Coordinates()
	require.NoError(t, err)
	assert.Len(t, coords, 3)
	assert.Equal(t, first, p.DatasetPath())
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadDataset_FailureIsRetried(t *testing.T) {
	fail := true
	p := newTestPipeline(t, "", WithDatasetLoader(func(path string) (domain.Matrix, error) {
		if fail {
			return domain.Matrix{}, domain.ErrArtifactNotFound
		}
		return artifact.LoadDataset(path)
	}))

	_, err := p.Coordinates()
	require.ErrorIs(t, err, domain.ErrArtifactNotFound)
	assert.False(t, p.DatasetLoaded())

	fail = false
	_, err = p.Coordinates()
	require.NoError(t, err)
}

func TestGroundTruth(t *testing.T) {
	p := newTestPipeline(t, "")

	points, err := p.GroundTruth()
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, domain.LabelFlood, points[0].Label)
	assert.Equal(t, domain.LabelNoFlood, points[1].Label)
	assert.Len(t, domain.Positives(points), 2)
}

func TestCheckReadiness(t *testing.T) {
	p := newTestPipeline(t, "")
	assert.Error(t, p.CheckReadiness(t.Context()))

	require.NoError(t, p.LoadDataset(p.datasetPath))
	assert.NoError(t, p.CheckReadiness(t.Context()))
}

func TestRawFeatures_MissingDataset(t *testing.T) {
	p := NewPipeline(filepath.Join(t.TempDir(), "none.csv"), "", WithLogger(discardLogger()))

	_, err := p.RawFeatures()
	assert.True(t, errors.Is(err, domain.ErrArtifactNotFound))
}
