// Package dataframe converts buffered query results into Arrow tables.
//
// Both backends report column types by engine type name. Those names are
// mapped onto a small set of Arrow types:
//
//	tinyint, smallint, integer, bigint, hugeint, ...  -> int64
//	real, float, double, decimal                      -> float64
//	boolean                                           -> bool
//	date                                              -> date32
//	timestamp                                         -> timestamp[us]
//	timestamp with time zone                          -> timestamp[us, UTC]
//	anything else (varchar, row, struct, list, ...)   -> utf8
//
// Every column is nullable, so an integer column containing NULLs stays int64
// instead of being widened to a float.
package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/studydb/backend"
)

// ArrowType maps an engine type name to the Arrow type used for it.
func ArrowType(typeName string) arrow.DataType {
	name := strings.ToLower(strings.TrimSpace(typeName))
	if strings.HasSuffix(name, "[]") {
		return arrow.BinaryTypes.String
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}

	switch name {
	case "tinyint", "smallint", "integer", "int", "bigint", "hugeint",
		"utinyint", "usmallint", "uinteger", "ubigint", "uhugeint",
		"int1", "int2", "int4", "int8", "long", "short":
		return arrow.PrimitiveTypes.Int64
	case "real", "float", "float4", "float8", "double", "decimal", "numeric":
		return arrow.PrimitiveTypes.Float64
	case "boolean", "bool":
		return arrow.FixedWidthTypes.Boolean
	case "date":
		return arrow.FixedWidthTypes.Date32
	case "timestamp", "datetime", "timestamp_us", "timestamp_ms", "timestamp_s", "timestamp_ns":
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case "timestamp with time zone", "timestamptz":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema returns the Arrow schema for a result description.
func Schema(columns []backend.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// FromRows builds a single-chunk table from rows described by columns.
// If alloc is nil, memory.DefaultAllocator is used.
// Caller MUST call Release on the returned table.
func FromRows(alloc memory.Allocator, columns []backend.Column, rows [][]any) (arrow.Table, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	schema := Schema(columns)

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d: got %d values for %d columns", r, len(row), len(columns))
		}
		for c, v := range row {
			if err := appendValue(builder.Field(c), v); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, columns[c].Name, err)
			}
		}
	}

	record := builder.NewRecordBatch()
	defer record.Release()

	return array.NewTableFromRecords(schema, []arrow.RecordBatch{record}), nil
}
