package duckdb

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// quoteIdentifier returns name as a DuckDB double-quoted identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// typeName formats an Arrow type as a DuckDB SQL type name.
func typeName(dt arrow.DataType) (string, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return "BOOLEAN", nil
	case arrow.INT8:
		return "TINYINT", nil
	case arrow.INT16:
		return "SMALLINT", nil
	case arrow.INT32:
		return "INTEGER", nil
	case arrow.INT64:
		return "BIGINT", nil
	case arrow.FLOAT32:
		return "FLOAT", nil
	case arrow.FLOAT64:
		return "DOUBLE", nil
	case arrow.STRING, arrow.LARGE_STRING:
		return "VARCHAR", nil
	case arrow.DATE32:
		return "DATE", nil
	case arrow.TIMESTAMP:
		if ts := dt.(*arrow.TimestampType); ts.TimeZone != "" {
			return "TIMESTAMP WITH TIME ZONE", nil
		}
		return "TIMESTAMP", nil
	case arrow.LIST:
		child, err := typeName(dt.(*arrow.ListType).Elem())
		if err != nil {
			return "", err
		}
		return child + "[]", nil
	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		fields := make([]string, st.NumFields())
		for i, f := range st.Fields() {
			ft, err := typeName(f.Type)
			if err != nil {
				return "", fmt.Errorf("%s: %w", f.Name, err)
			}
			fields[i] = quoteIdentifier(f.Name) + " " + ft
		}
		return "STRUCT(" + strings.Join(fields, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported arrow type %s", dt)
	}
}

// createTableSQL returns a CREATE OR REPLACE TABLE statement for schema.
func createTableSQL(table string, schema *arrow.Schema) (string, error) {
	if schema.NumFields() == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}
	cols := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		t, err := typeName(f.Type)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", f.Name, err)
		}
		cols[i] = quoteIdentifier(f.Name) + " " + t
	}
	return "CREATE OR REPLACE TABLE " + quoteIdentifier(table) + " (" + strings.Join(cols, ", ") + ")", nil
}
