package schema

import (
	"sort"
	"strings"
)

// InformationSchemaQuery returns SQL listing (column_name, data_type) for the
// given columns of schemaName.table. Column names are compared lowercased.
// The result feeds ColumnTypesFromRows and ValidateTableSchema.
func InformationSchemaQuery(schemaName, table string, columns []string) string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, quoteLiteral(strings.ToLower(c)))
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = ")
	sb.WriteString(quoteLiteral(schemaName))
	sb.WriteString(" AND table_name = ")
	sb.WriteString(quoteLiteral(strings.ToLower(table)))
	if len(names) > 0 {
		sb.WriteString(" AND LOWER(column_name) IN (")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
