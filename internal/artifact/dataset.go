package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/floodsense-service/internal/domain"
)

// LoadDataset reads the inference CSV at path into a matrix that keeps every
// column, including lat, lon and target, in file order. The feature columns
// vary per dataset, so rows are parsed by header rather than into a struct.
func LoadDataset(path string) (domain.Matrix, error) {
	f, err := Open(path)
	if err != nil {
		return domain.Matrix{}, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return domain.Matrix{}, loadError(path, fmt.Errorf("read csv: %w", err))
	}
	m, err := parseDataset(records)
	if err != nil {
		return domain.Matrix{}, loadError(path, err)
	}
	return m, nil
}

func parseDataset(records [][]string) (domain.Matrix, error) {
	if len(records) == 0 {
		return domain.Matrix{}, errors.New("dataset has no header")
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]struct{}, len(header))
	for i, h := range records[0] {
		name := strings.TrimSpace(h)
		if name == "" {
			return domain.Matrix{}, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return domain.Matrix{}, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
		header[i] = name
	}

	m := domain.Matrix{Columns: header, Rows: make([][]float64, 0, len(records)-1)}
	for _, required := range []string{domain.ColumnLat, domain.ColumnLon, domain.ColumnTarget} {
		if m.ColumnIndex(required) < 0 {
			return domain.Matrix{}, fmt.Errorf("required column %q missing", required)
		}
	}

	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return domain.Matrix{}, fmt.Errorf("row %d column %q: %w", i+1, header[j], err)
			}
			row[j] = v
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}
