package domain

import "fmt"

// Dataset column names with fixed meaning.
const (
	ColumnLat    = "lat"
	ColumnLon    = "lon"
	ColumnTarget = "target"
)

// Matrix is a row-major table of feature values with named columns.
// Rows keep the order of the dataset they were extracted from.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (m Matrix) Len() int { return len(m.Rows) }

// Width returns the number of columns.
func (m Matrix) Width() int { return len(m.Columns) }

// Select projects the matrix onto the named columns, in the given order.
func (m Matrix) Select(columns []string) (Matrix, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		j := m.ColumnIndex(name)
		if j < 0 {
			return Matrix{}, fmt.Errorf("column %q not present", name)
		}
		idx[i] = j
	}
	rows := make([][]float64, len(m.Rows))
	for r, row := range m.Rows {
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return Matrix{Columns: append([]string(nil), columns...), Rows: rows}, nil
}

// ColumnIndex returns the position of name or -1.
func (m Matrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Without returns the column names of m minus the excluded set, preserving order.
func (m Matrix) Without(exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func shapeMismatch(leftName string, left int, rightName string, right int) error {
	return fmt.Errorf("%w: %d %s vs %d %s", ErrShapeMismatch, left, leftName, right, rightName)
}

// CheckRows returns ErrShapeMismatch when got differs from want.
func CheckRows(what string, want, got int) error {
	if want != got {
		return shapeMismatch("rows", want, what, got)
	}
	return nil
}
