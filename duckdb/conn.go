package duckdb

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/dataframe"
)

// Conn is the backend's single connection. It implements backend.DataFrameCursor.
// Conn is not goroutine-safe.
type Conn struct {
	conn   *sql.Conn
	alloc  memory.Allocator
	logger *slog.Logger

	rows   *backend.Rows
	closed bool
}

var _ backend.DataFrameCursor = (*Conn)(nil)

// Execute implements backend.Cursor. Engine errors are returned unchanged.
func (c *Conn) Execute(ctx context.Context, query string) error {
	if c.closed {
		return backend.ErrClosed
	}
	c.rows = nil
	c.logger.Debug("Executing statement", "backend", "duckdb", "sql", query)

	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	columns := make([]backend.Column, len(types))
	for i, t := range types {
		columns[i] = backend.Column{Name: t.Name(), Type: t.DatabaseTypeName()}
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.rows = backend.NewRows(columns, data)
	return nil
}

// Description implements backend.Cursor.
func (c *Conn) Description() []backend.Column {
	if c.rows == nil {
		return nil
	}
	return c.rows.Columns()
}

// FetchOne implements backend.Cursor.
func (c *Conn) FetchOne() ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.rows.Next(), nil
}

// FetchMany implements backend.Cursor.
func (c *Conn) FetchMany(n int) ([][]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	return c.rows.Take(n), nil
}

// FetchAll implements backend.Cursor.
func (c *Conn) FetchAll() ([][]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.rows.Take(-1), nil
}

// AsDataFrame implements backend.DataFrameCursor.
func (c *Conn) AsDataFrame() (arrow.Table, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return dataframe.FromRows(c.alloc, c.rows.Columns(), c.rows.Take(-1))
}

func (c *Conn) ready() error {
	if c.closed {
		return backend.ErrClosed
	}
	if c.rows == nil {
		return backend.ErrNoResult
	}
	return nil
}
