// Package backend defines the contract every warehouse backend implements.
//
// Study SQL runs through a Cursor obtained from a Backend. Results are
// whole-result: Execute materializes every row before returning, and the
// Fetch methods read from that buffer. Cursors are not goroutine-safe.
package backend

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/studydb/schema"
)

var (
	// ErrClosed is returned by operations on a closed backend or its cursors.
	ErrClosed = errors.New("backend is closed")

	// ErrNoResult is returned by Fetch methods called before Execute.
	ErrNoResult = errors.New("no result set: call Execute first")
)

// Column describes one result column. Type is the engine's own type name
// (for example "bigint" on Athena or "BIGINT" on DuckDB).
type Column struct {
	Name string
	Type string
}

// Cursor submits statements and retrieves their rows.
type Cursor interface {
	// Execute runs a single statement and buffers its full result.
	Execute(ctx context.Context, query string) error

	// Description returns the columns of the last result.
	Description() []Column

	// FetchOne returns the next row, or nil when no rows remain.
	FetchOne() ([]any, error)

	// FetchMany returns up to n rows. An empty slice means no rows remain.
	FetchMany(n int) ([][]any, error)

	// FetchAll returns every remaining row.
	FetchAll() ([][]any, error)
}

// DataFrameCursor is a Cursor whose result can be materialized as an Arrow table.
type DataFrameCursor interface {
	Cursor

	// AsDataFrame converts the remaining rows of the last result into a table.
	// Integer columns containing NULLs stay integer-typed.
	// Caller MUST call Release on the returned table.
	AsDataFrame() (arrow.Table, error)
}

// Backend owns one live connection to a warehouse engine.
type Backend interface {
	// SchemaName returns the logical schema (database) name fixed at construction.
	SchemaName() string

	// Cursor returns a cursor. Implementations may return the same cursor repeatedly.
	Cursor() Cursor

	// DataFrameCursor returns a cursor whose results convert to Arrow tables.
	DataFrameCursor() DataFrameCursor

	// ExecuteAsDataFrame runs query once and returns the whole result as a table.
	// Caller MUST call Release on the returned table.
	ExecuteAsDataFrame(ctx context.Context, query string) (arrow.Table, error)

	// Parser returns a schema parser matched to this backend's information_schema output.
	Parser() *schema.Parser

	// Close releases the connection. The backend must not be used afterwards.
	Close() error
}
