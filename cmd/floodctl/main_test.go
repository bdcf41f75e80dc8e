package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/model"
	"github.com/couchcryptid/floodsense-service/internal/prediction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workDir lays out a logistic model that floods rows with rainfall above 0.5
// and a four-row dataset. No scaler is written, so features stay unscaled.
func workDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "flood_model.json"), []byte(`{
		"kind": "logistic",
		"features": ["lat", "lon", "rainfall"],
		"logistic": {"weights": [0, 0, 10], "bias": -5}
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "flood_inference_data.csv"), []byte(
		"lat,lon,rainfall,target\n"+
			"-5.1,119.4,0.9,1\n"+
			"-4.5,120.25,0.1,0\n"+
			"-3,120.2,0.8,0\n"+
			"-5.4,119.9,0.2,1\n"), 0o600))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestPredict_JSON(t *testing.T) {
	out, err := run(t, "predict", "--workdir", workDir(t))
	require.NoError(t, err)

	var points []domain.Coordinate
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	assert.Equal(t, []domain.Coordinate{{Lat: -5.1, Lon: 119.4}, {Lat: -3, Lon: 120.2}}, points)
}

func TestPredict_CSV(t *testing.T) {
	out, err := run(t, "predict", "--workdir", workDir(t), "--format", "csv")
	require.NoError(t, err)

	assert.Equal(t, "lat,lon\n-5.1,119.4\n-3,120.2\n", out)
}

func TestPredict_ThresholdFlag(t *testing.T) {
	out, err := run(t, "predict", "--workdir", workDir(t), "--threshold", "0", "--batch-size", "1")
	require.NoError(t, err)

	var points []domain.Coordinate
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	assert.Len(t, points, 4)
}

func TestScores_JSON(t *testing.T) {
	out, err := run(t, "scores", "--workdir", workDir(t))
	require.NoError(t, err)

	var rows []scoreRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 4)

	labels := make([]domain.Label, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	assert.Equal(t, []domain.Label{1, 0, 1, 0}, labels)
	assert.Equal(t, -4.5, rows[1].Lat)
	assert.InDelta(t, 0.982, rows[0].Score, 0.001)
	assert.InDelta(t, 0.018, rows[1].Score, 0.001)
}

func TestScores_CSV(t *testing.T) {
	out, err := run(t, "scores", "--workdir", workDir(t), "--format", "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "lat,lon,score,label", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "-4.5,120.25,0.01"), lines[2])
	assert.True(t, strings.HasSuffix(lines[2], ",0"), lines[2])
}

func TestScores_UnknownFormat(t *testing.T) {
	_, err := run(t, "scores", "--workdir", workDir(t), "--format", "geojson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geojson")
}

func TestPredict_UnknownFormat(t *testing.T) {
	_, err := run(t, "predict", "--workdir", workDir(t), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestPredict_InvalidThreshold(t *testing.T) {
	_, err := run(t, "predict", "--workdir", workDir(t), "--threshold", "1.5")
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestPredict_MissingModel(t *testing.T) {
	_, err := run(t, "predict", "--workdir", t.TempDir())
	require.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestEvaluate(t *testing.T) {
	out, err := run(t, "evaluate", "--workdir", workDir(t))
	require.NoError(t, err)

	var eval prediction.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &eval))
	assert.Equal(t, 4, eval.Rows)
	assert.Equal(t, 1, eval.TruePositives)
	assert.Equal(t, 1, eval.FalsePositives)
	assert.Equal(t, 1, eval.TrueNegatives)
	assert.Equal(t, 1, eval.FalseNegatives)
	assert.InDelta(t, 0.5, eval.Accuracy, 1e-9)
}

func TestModel(t *testing.T) {
	dir := workDir(t)
	out, err := run(t, "model", "--workdir", dir, "--batch-size", "8")
	require.NoError(t, err)

	var info model.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "loaded", info.Status)
	assert.Equal(t, filepath.Join(dir, "models", "flood_model.json"), info.Path)
	assert.Equal(t, []int{-1, 3}, info.InputShape)
	assert.Equal(t, 8, info.BatchSize)
}

func TestWeather_DefaultsWithoutKey(t *testing.T) {
	out, err := run(t, "weather", "Makassar", "--api-key", "")
	require.NoError(t, err)

	var report struct {
		Regency domain.Regency        `json:"regency"`
		Current domain.CurrentWeather `json:"current"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Makassar", report.Regency.Name)
	assert.InDelta(t, domain.DefaultTemperature, report.Current.Temperature, 1e-9)
}

func TestWeather_UnknownRegency(t *testing.T) {
	_, err := run(t, "weather", "Atlantis", "--api-key", "")
	require.ErrorIs(t, err, domain.ErrUnknownRegency)
}
