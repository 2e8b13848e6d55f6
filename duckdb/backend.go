// Package duckdb implements the embedded backend on a local DuckDB database.
//
// The backend owns a single pinned connection. Tables registered with
// InsertTables and the dialect compatibility functions live on that
// connection, so the connection itself serves as the cursor: Cursor and
// DataFrameCursor always return the same *Conn.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	ddb "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/schema"
)

// SchemaName is the schema every DuckDB table is created in.
const SchemaName = "main"

// InMemory is the path that opens a transient in-memory database.
const InMemory = ":memory:"

// Config contains configuration for the DuckDB backend.
type Config struct {
	// Path is the database file. InMemory or "" opens an in-memory database.
	Path string

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator
}

// Backend is the embedded DuckDB backend.
type Backend struct {
	path   string
	db     *sql.DB
	conn   *Conn
	parser *schema.Parser
	logger *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New opens the database at cfg.Path and registers the compatibility functions
// (array_join, from_iso8601_timestamp, to_utf8).
func New(ctx context.Context, cfg Config) (*Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	dsn := cfg.Path
	if dsn == InMemory {
		dsn = ""
	}
	connector, err := ddb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", cfg.Path, err)
	}
	db := sql.OpenDB(connector)

	sqlConn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect duckdb %q: %w", cfg.Path, err)
	}

	if err := registerCompatFunctions(sqlConn, logger); err != nil {
		sqlConn.Close()
		db.Close()
		return nil, err
	}

	logger.Info("DuckDB backend opened", "path", cfg.Path)

	return &Backend{
		path:   cfg.Path,
		db:     db,
		conn:   &Conn{conn: sqlConn, alloc: alloc, logger: logger},
		parser: schema.NewParser("duckdb"),
		logger: logger,
	}, nil
}

// SchemaName implements backend.Backend. It is always "main".
func (b *Backend) SchemaName() string {
	return SchemaName
}

// Path returns the database file the backend was opened on.
func (b *Backend) Path() string {
	return b.path
}

// Cursor implements backend.Backend. It returns the connection itself.
func (b *Backend) Cursor() backend.Cursor {
	return b.conn
}

// DataFrameCursor implements backend.Backend. It returns the connection itself.
func (b *Backend) DataFrameCursor() backend.DataFrameCursor {
	return b.conn
}

// Conn returns the backend's connection, the same value Cursor returns.
func (b *Backend) Conn() *Conn {
	return b.conn
}

// ExecuteAsDataFrame implements backend.Backend.
func (b *Backend) ExecuteAsDataFrame(ctx context.Context, query string) (arrow.Table, error) {
	if err := b.conn.Execute(ctx, query); err != nil {
		return nil, err
	}
	return b.conn.AsDataFrame()
}

// Parser implements backend.Backend.
func (b *Backend) Parser() *schema.Parser {
	return b.parser
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	if b.conn.closed {
		return backend.ErrClosed
	}
	b.conn.closed = true
	b.conn.rows = nil

	err := errors.Join(b.conn.conn.Close(), b.db.Close())
	b.logger.Info("DuckDB backend closed", "path", b.path)
	return err
}
