package backend

// Rows is a buffered result set with a read position.
type Rows struct {
	columns []Column
	data    [][]any
	pos     int
}

// NewRows wraps a fully materialized result.
func NewRows(columns []Column, data [][]any) *Rows {
	return &Rows{columns: columns, data: data}
}

// Columns returns the result columns.
func (r *Rows) Columns() []Column {
	return r.columns
}

// Len returns the number of rows not yet fetched.
func (r *Rows) Len() int {
	return len(r.data) - r.pos
}

// Next returns the next row, or nil when exhausted.
func (r *Rows) Next() []any {
	if r.pos >= len(r.data) {
		return nil
	}
	row := r.data[r.pos]
	r.pos++
	return row
}

// Take returns up to n rows. A negative n takes everything that remains.
func (r *Rows) Take(n int) [][]any {
	remaining := len(r.data) - r.pos
	if n < 0 || n > remaining {
		n = remaining
	}
	out := make([][]any, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out
}
