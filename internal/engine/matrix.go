package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// similarityTolerance absorbs float noise in precomputed cosine similarities.
const similarityTolerance = 1e-9

// Matrix is a precomputed, signed item-item similarity matrix. Rows are candidate target items,
// columns are source items. A Matrix is immutable once built and is shared by concurrent requests
// without locking.
type Matrix struct {
	data   *mat.Dense
	rowIDs []string
	colIDs []string
	rowIdx map[string]int
	colIdx map[string]int
}

// NewMatrix builds a Matrix from row-major values. The values slice is copied.
func NewMatrix(rowIDs, colIDs []string, values []float64) (*Matrix, error) {
	if len(rowIDs) == 0 || len(colIDs) == 0 {
		return nil, fmt.Errorf("similarity matrix needs at least one row and one column, got %dx%d", len(rowIDs), len(colIDs))
	}
	if len(values) != len(rowIDs)*len(colIDs) {
		return nil, fmt.Errorf("similarity matrix has %d values, want %d", len(values), len(rowIDs)*len(colIDs))
	}

	rowIdx, err := indexIDs(rowIDs, "row")
	if err != nil {
		return nil, err
	}
	colIdx, err := indexIDs(colIDs, "column")
	if err != nil {
		return nil, err
	}

	backing := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || v < -1-similarityTolerance || v > 1+similarityTolerance {
			return nil, fmt.Errorf("similarity %v at (%s, %s) is outside [-1, 1]",
				v, rowIDs[i/len(colIDs)], colIDs[i%len(colIDs)])
		}
		backing[i] = v
	}

	return &Matrix{
		data:   mat.NewDense(len(rowIDs), len(colIDs), backing),
		rowIDs: append([]string(nil), rowIDs...),
		colIDs: append([]string(nil), colIDs...),
		rowIdx: rowIdx,
		colIdx: colIdx,
	}, nil
}

func indexIDs(ids []string, kind string) (map[string]int, error) {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("similarity matrix %s %d has an empty id", kind, i)
		}
		if _, dup := idx[id]; dup {
			return nil, fmt.Errorf("similarity matrix has duplicate %s id %s", kind, id)
		}
		idx[id] = i
	}
	return idx, nil
}

// Dims returns the number of target rows and source columns.
func (m *Matrix) Dims() (rows, cols int) {
	return len(m.rowIDs), len(m.colIDs)
}

// RowIDs returns a copy of the target item ids.
func (m *Matrix) RowIDs() []string {
	return append([]string(nil), m.rowIDs...)
}

// ColIDs returns a copy of the source item ids.
func (m *Matrix) ColIDs() []string {
	return append([]string(nil), m.colIDs...)
}

// HasColumn reports whether the source item is known to the model.
func (m *Matrix) HasColumn(id string) bool {
	_, ok := m.colIdx[id]
	return ok
}

// Lookup returns sim(target, source). The boolean is false when either item is unknown.
func (m *Matrix) Lookup(target, source string) (float64, bool) {
	i, ok := m.rowIdx[target]
	if !ok {
		return 0, false
	}
	j, ok := m.colIdx[source]
	if !ok {
		return 0, false
	}
	return m.data.At(i, j), true
}

// All returns a view over the whole matrix.
func (m *Matrix) All() *View {
	rows := make([]int, len(m.rowIDs))
	for i := range rows {
		rows[i] = i
	}
	cols := make([]int, len(m.colIDs))
	for j := range cols {
		cols[j] = j
	}
	return &View{m: m, rows: rows, cols: cols}
}

// Columns returns a view with every row and only the requested source columns, in request order.
// Ids the model does not know are dropped: partial coverage of a user's library is normal.
func (m *Matrix) Columns(ids []string) *View {
	return m.All().Columns(ids)
}

// View is a row and column subset of a Matrix. Views share the Matrix storage and never write to it.
type View struct {
	m    *Matrix
	rows []int
	cols []int
}

// NumRows returns the number of target rows in the view.
func (v *View) NumRows() int { return len(v.rows) }

// NumCols returns the number of source columns in the view.
func (v *View) NumCols() int { return len(v.cols) }

// RowIDs returns the target ids of the view in row order.
func (v *View) RowIDs() []string {
	ids := make([]string, len(v.rows))
	for i, r := range v.rows {
		ids[i] = v.m.rowIDs[r]
	}
	return ids
}

// ColIDs returns the source ids of the view in column order.
func (v *View) ColIDs() []string {
	ids := make([]string, len(v.cols))
	for j, c := range v.cols {
		ids[j] = v.m.colIDs[c]
	}
	return ids
}

// At returns the similarity at view position (i, j).
func (v *View) At(i, j int) float64 {
	return v.m.data.At(v.rows[i], v.cols[j])
}

// Row copies the similarities of view row i.
func (v *View) Row(i int) []float64 {
	out := make([]float64, len(v.cols))
	src := v.m.data.RawRowView(v.rows[i])
	for j, c := range v.cols {
		out[j] = src[c]
	}
	return out
}

// rowPositions maps each target id of the view to its row position.
func (v *View) rowPositions() map[string]int {
	pos := make(map[string]int, len(v.rows))
	for i, r := range v.rows {
		pos[v.m.rowIDs[r]] = i
	}
	return pos
}

// Columns narrows the view to the requested source columns that it already contains.
func (v *View) Columns(ids []string) *View {
	present := make(map[int]struct{}, len(v.cols))
	for _, c := range v.cols {
		present[c] = struct{}{}
	}

	cols := make([]int, 0, len(ids))
	taken := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		c, ok := v.m.colIdx[id]
		if !ok {
			continue
		}
		if _, ok := present[c]; !ok {
			continue
		}
		if _, dup := taken[c]; dup {
			continue
		}
		taken[c] = struct{}{}
		cols = append(cols, c)
	}

	return &View{m: v.m, rows: append([]int(nil), v.rows...), cols: cols}
}

// ExcludeRows drops the given target items from the view. It is used when source and target
// domains are the same so that items the user already engages with are not recommended back.
func (v *View) ExcludeRows(ids []string) *View {
	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if r, ok := v.m.rowIdx[id]; ok {
			drop[r] = struct{}{}
		}
	}

	rows := make([]int, 0, len(v.rows))
	for _, r := range v.rows {
		if _, skip := drop[r]; !skip {
			rows = append(rows, r)
		}
	}

	return &View{m: v.m, rows: rows, cols: append([]int(nil), v.cols...)}
}
