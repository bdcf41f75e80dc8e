// Command genmock writes a synthetic inference dataset together with a
// matching scaler and logistic classifier, so the service and floodctl can
// run locally without the training pipeline.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir . -rows 500 -seed 7
//
// Files are written to <out-dir>/data/flood_inference_data.csv,
// <out-dir>/models/robust_scaler.json and <out-dir>/models/flood_model.json.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
)

// South Sulawesi bounding box.
const (
	minLat, maxLat = -6.0, -2.5
	minLon, maxLon = 119.3, 121.0
)

var featureNames = []string{
	domain.ColumnLat, domain.ColumnLon, "rainfall", "elevation", "river_distance", "slope",
}

// Ground-truth logit over the scaled features, in featureNames order.
var (
	trueWeights = []float64{0, 0, 1.2, -1.0, -0.8, -0.5}
	trueBias    = -0.3
)

// row is one dataset line.
type row struct {
	Lat           float64 `csv:"lat"`
	Lon           float64 `csv:"lon"`
	Rainfall      float64 `csv:"rainfall"`
	Elevation     float64 `csv:"elevation"`
	RiverDistance float64 `csv:"river_distance"`
	Slope         float64 `csv:"slope"`
	Target        int     `csv:"target"`
}

func (r row) features() []float64 {
	return []float64{r.Lat, r.Lon, r.Rainfall, r.Elevation, r.RiverDistance, r.Slope}
}

type classifierFile struct {
	Kind     string                  `json:"kind"`
	Features []string                `json:"features"`
	Logistic *artifact.LogisticModel `json:"logistic"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", ".", "directory to write data/ and models/ into")
	rows := flag.Int("rows", 500, "number of dataset rows")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *rows <= 0 {
		flag.Usage()
		return fmt.Errorf("-rows must be positive, got %d", *rows)
	}

	floods, err := generate(*outDir, *rows, *seed)
	if err != nil {
		return err
	}
	log.Printf("wrote %d rows (%d flood) to %s", *rows, floods, *outDir)
	return nil
}

// generate writes all three artifacts and returns the number of flood rows.
func generate(outDir string, n int, seed uint64) (int, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	data := make([]row, n)
	for i := range data {
		data[i] = row{
			Lat:           round(minLat+rng.Float64()*(maxLat-minLat), 4),
			Lon:           round(minLon+rng.Float64()*(maxLon-minLon), 4),
			Rainfall:      round(rng.ExpFloat64()*80, 1),
			Elevation:     round(math.Pow(rng.Float64(), 2)*800, 1),
			RiverDistance: round(rng.Float64()*10, 2),
			Slope:         round(rng.Float64()*30, 1),
		}
	}

	scaler, err := fitRobust(data)
	if err != nil {
		return 0, err
	}

	floods := 0
	for i := range data {
		scaled, err := scaler.Transform([][]float64{data[i].features()})
		if err != nil {
			return 0, err
		}
		z := trueBias
		for j, w := range trueWeights {
			z += w * scaled[0][j]
		}
		if rng.Float64() < 1/(1+math.Exp(-z)) {
			data[i].Target = 1
			floods++
		}
	}

	model := classifierFile{
		Kind:     artifact.KindLogistic,
		Features: featureNames,
		Logistic: &artifact.LogisticModel{Weights: trueWeights, Bias: trueBias},
	}

	if err := writeJSON(filepath.Join(outDir, "models", artifact.DefaultScalerFile), scaler); err != nil {
		return 0, err
	}
	if err := writeJSON(filepath.Join(outDir, "models", artifact.DefaultModelFile), model); err != nil {
		return 0, err
	}
	if err := writeCSV(filepath.Join(outDir, "data", artifact.DefaultDatasetFile), data); err != nil {
		return 0, err
	}
	return floods, nil
}

// fitRobust centres each column on its median and scales by its IQR.
func fitRobust(data []row) (*artifact.ColumnScaler, error) {
	s := &artifact.ColumnScaler{
		Kind:     artifact.KindRobust,
		Features: featureNames,
		Center:   make([]float64, len(featureNames)),
		Scale:    make([]float64, len(featureNames)),
	}
	for j, name := range featureNames {
		col := make(stats.Float64Data, len(data))
		for i, r := range data {
			col[i] = r.features()[j]
		}
		median, err := col.Median()
		if err != nil {
			return nil, fmt.Errorf("median of %s: %w", name, err)
		}
		iqr, err := col.InterQuartileRange()
		if err != nil {
			return nil, fmt.Errorf("iqr of %s: %w", name, err)
		}
		if iqr == 0 {
			iqr = 1
		}
		s.Center[j], s.Scale[j] = median, iqr
	}
	return s, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644) //nolint:gosec // artifacts are not secret
}

func writeCSV(path string, data []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&data, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return v
	}
	return r
}
