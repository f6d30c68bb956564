package dbwrapper

import (
	"database/sql"
	"iter"
)

// Cursor is a forward-only, single-pass iterator over one result set.
// It is NOT safe for concurrent use. Every path that reaches the end of the
// data (FetchOne, FetchMany, FetchAll, Next, All) releases the result set;
// Close releases it early.
type Cursor struct {
	rows   *sql.Rows
	cols   []string
	row    Row
	err    error
	closed bool
	onErr  func() // called when reading the result set fails
}

func newCursor(rows *sql.Rows) (*Cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Cursor{rows: rows, cols: cols}, nil
}

// Columns returns the column names of the result set.
func (c *Cursor) Columns() []string {
	return append([]string(nil), c.cols...)
}

// Next advances to the next row, making it available through Row.
// It returns false at the end of data or on error; check Err.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.fail(err)
		}
		c.Close()
		return false
	}

	vals := make([]any, len(c.cols))
	targets := make([]any, len(c.cols))
	for i := range vals {
		targets[i] = &vals[i]
	}
	if err := c.rows.Scan(targets...); err != nil {
		c.fail(err)
		c.Close()
		return false
	}
	c.row = newRow(c.cols, vals)
	return true
}

// Row returns the row loaded by the last successful Next.
func (c *Cursor) Row() Row { return c.row }

// Err returns the error, if any, that stopped iteration. A cursor cut off
// by a later statement on the same Database reports ErrCursorSuperseded,
// and one still open when the Database ended reports ErrClosed.
func (c *Cursor) Err() error { return c.err }

// FetchOne returns the next row, or ErrNoMoreRows once the data is exhausted.
func (c *Cursor) FetchOne() (Row, error) {
	if c.Next() {
		return c.row, nil
	}
	if c.err != nil {
		return Row{}, c.err
	}
	return Row{}, ErrNoMoreRows
}

// FetchMany returns up to n of the remaining rows.
func (c *Cursor) FetchMany(n int) ([]Row, error) {
	out := make([]Row, 0, max(n, 0))
	for len(out) < n && c.Next() {
		out = append(out, c.row)
	}
	return out, c.err
}

// FetchAll returns all remaining rows.
func (c *Cursor) FetchAll() ([]Row, error) {
	var out []Row
	for c.Next() {
		out = append(out, c.row)
	}
	return out, c.err
}

// All returns an iterator over the remaining rows. Iteration stops after
// yielding the first error.
func (c *Cursor) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for c.Next() {
			if !yield(c.row, nil) {
				return
			}
		}
		if c.err != nil {
			yield(Row{}, c.err)
		}
	}
}

func (c *Cursor) fail(err error) {
	c.err = err
	if c.onErr != nil {
		c.onErr()
	}
}

// abort closes a cursor that still has data and records err as the reason
// iteration stopped. Exhausted cursors are left alone.
func (c *Cursor) abort(err error) {
	if c.closed {
		return
	}
	c.err = err
	c.Close()
}

// Close releases the result set. It is safe to call Close multiple times.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
