package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/floodsense-service/internal/domain"
)

// Default file names under the working directory.
const (
	DefaultModelFile   = "flood_model.json"
	DefaultScalerFile  = "robust_scaler.json"
	DefaultDatasetFile = "flood_inference_data.csv"
)

// Store resolves artifact locations relative to a working directory.
type Store struct {
	WorkDir     string
	ModelFile   string
	ScalerFile  string
	DatasetFile string
}

// NewStore creates a Store rooted at workDir with the default file names.
// An empty workDir resolves against the process working directory.
func NewStore(workDir string) *Store {
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	return &Store{
		WorkDir:     workDir,
		ModelFile:   DefaultModelFile,
		ScalerFile:  DefaultScalerFile,
		DatasetFile: DefaultDatasetFile,
	}
}

// ResolveModelPath returns override when set, else <workdir>/models/<model-file>.
func (s *Store) ResolveModelPath(override string) string {
	return resolve(override, s.WorkDir, "models", s.ModelFile)
}

// ResolveScalerPath returns override when set, else <workdir>/models/<scaler-file>.
func (s *Store) ResolveScalerPath(override string) string {
	return resolve(override, s.WorkDir, "models", s.ScalerFile)
}

// ResolveDatasetPath returns override when set, else <workdir>/data/<dataset-file>.
func (s *Store) ResolveDatasetPath(override string) string {
	return resolve(override, s.WorkDir, "data", s.DatasetFile)
}

func resolve(override, workDir, dir, file string) string {
	if override != "" {
		return override
	}
	return filepath.Join(workDir, dir, file)
}

// Open opens an artifact file, mapping a missing path to ErrArtifactNotFound.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrArtifactLoad, path, err)
	}
	return f, nil
}

func loadError(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrArtifactLoad, path, err)
}
