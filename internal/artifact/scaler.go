package artifact

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/floodsense-service/internal/domain"
)

// Scaler kinds understood by LoadScaler. Both share the (x - center) / scale
// form; standard stores mean/std, robust stores median/IQR.
const (
	KindStandard = "standard"
	KindRobust   = "robust"
)

// ColumnScaler is a fitted per-column affine transform.
type ColumnScaler struct {
	Kind     string    `json:"kind"`
	Features []string  `json:"features,omitempty"`
	Center   []float64 `json:"center"`
	Scale    []float64 `json:"scale"`
}

// LoadScaler decodes the scaler stored at path.
func LoadScaler(path string) (*domain.ScalerArtifact, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s ColumnScaler
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, loadError(path, fmt.Errorf("decode scaler: %w", err))
	}
	if err := s.validate(); err != nil {
		return nil, loadError(path, err)
	}

	return &domain.ScalerArtifact{
		Path:     path,
		Kind:     s.Kind,
		Features: s.Features,
		Scaler:   &s,
	}, nil
}

func (s *ColumnScaler) validate() error {
	switch s.Kind {
	case KindStandard, KindRobust:
	default:
		return fmt.Errorf("unsupported scaler kind %q", s.Kind)
	}
	if len(s.Center) == 0 {
		return errors.New("scaler has no parameters")
	}
	if len(s.Center) != len(s.Scale) {
		return fmt.Errorf("%d centers for %d scales", len(s.Center), len(s.Scale))
	}
	if len(s.Features) > 0 && len(s.Features) != len(s.Center) {
		return fmt.Errorf("%d feature names for %d parameters", len(s.Features), len(s.Center))
	}
	return nil
}

// Transform implements domain.Scaler. A zero scale leaves the centred value
// unscaled, matching scikit-learn's handling of constant columns.
func (s *ColumnScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, x := range rows {
		if len(x) != len(s.Center) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(x), len(s.Center))
		}
		y := make([]float64, len(x))
		for j, v := range x {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			y[j] = (v - s.Center[j]) / scale
		}
		out[i] = y
	}
	return out, nil
}
