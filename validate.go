package studydb

import (
	"context"
	"fmt"
	"sort"

	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/schema"
)

// ValidateTable reports which of the expected columns and struct members of
// table exist in b. It queries the backend's information_schema and passes
// the result to the backend's parser.
func ValidateTable(ctx context.Context, b backend.Backend, table string, expected schema.Expected) (schema.Report, error) {
	columns := make([]string, 0, len(expected))
	for name := range expected {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	cur := b.Cursor()
	query := schema.InformationSchemaQuery(b.SchemaName(), table, columns)
	if err := cur.Execute(ctx, query); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	raw, err := schema.ColumnTypesFromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	return b.Parser().ValidateTableSchema(expected, raw), nil
}
