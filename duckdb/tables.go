package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	ddb "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/studydb/backend"
)

// InsertTables registers each table under its map key so later SQL can query it.
// Existing tables of the same name are replaced. Tables are registered in
// sorted name order. The caller keeps ownership of the Arrow tables.
func (b *Backend) InsertTables(ctx context.Context, tables map[string]arrow.Table) error {
	if b.conn.closed {
		return backend.ErrClosed
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := b.insertTable(ctx, name, tables[name]); err != nil {
			return fmt.Errorf("register table %s: %w", name, err)
		}
		b.logger.Info("Table registered", "table", name, "rows", tables[name].NumRows())
	}
	return nil
}

func (b *Backend) insertTable(ctx context.Context, name string, tbl arrow.Table) error {
	ddl, err := createTableSQL(name, tbl.Schema())
	if err != nil {
		return err
	}
	if _, err := b.conn.conn.ExecContext(ctx, ddl); err != nil {
		return err
	}
	if tbl.NumRows() == 0 {
		return nil
	}

	return b.conn.conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", raw)
		}
		appender, err := ddb.NewAppenderFromConn(driverConn, "", name)
		if err != nil {
			return err
		}

		if err := appendTable(appender, tbl); err != nil {
			appender.Close()
			return err
		}
		return appender.Close()
	})
}

func appendTable(appender *ddb.Appender, tbl arrow.Table) error {
	reader := array.NewTableReader(tbl, 0)
	defer reader.Release()

	for reader.Next() {
		rec := reader.RecordBatch()
		row := make([]driver.Value, rec.NumCols())
		for r := 0; r < int(rec.NumRows()); r++ {
			for c := range row {
				row[c] = arrowValue(rec.Column(c), r)
			}
			if err := appender.AppendRow(row...); err != nil {
				return err
			}
		}
	}
	return reader.Err()
}

// arrowValue converts element i of arr to the Go value the DuckDB appender
// expects: maps for structs, slices for lists.
func arrowValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit)
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		m := make(map[string]any, st.NumFields())
		for f := 0; f < st.NumFields(); f++ {
			m[st.Field(f).Name] = arrowValue(a.Field(f), i)
		}
		return m
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, arrowValue(values, int(j)))
		}
		return out
	default:
		return arr.ValueStr(i)
	}
}
