package athena

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	awsathena "github.com/aws/aws-sdk-go/service/athena"

	"github.com/hugr-lab/studydb/backend"
)

// Athena returns every datum as text. These are the layouts of its date and
// timestamp renderings.
const (
	dateLayout      = time.DateOnly
	timestampLayout = "2006-01-02 15:04:05.999999999"
)

func convertRow(columns []backend.Column, data []*awsathena.Datum) ([]any, error) {
	row := make([]any, len(data))
	for i, d := range data {
		if d == nil || d.VarCharValue == nil {
			continue
		}
		v, err := convertValue(columnType(columns, i), *d.VarCharValue)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columnName(columns, i), err)
		}
		row[i] = v
	}
	return row, nil
}

// convertValue parses the text rendering s of an Athena value of type typ.
// Types without a native Go counterpart (decimal, array, map, row, json)
// stay strings.
func convertValue(typ, s string) (any, error) {
	switch strings.ToLower(typ) {
	case "boolean":
		return strconv.ParseBool(s)
	case "tinyint", "smallint", "integer", "int", "bigint":
		return strconv.ParseInt(s, 10, 64)
	case "float", "real", "double":
		return strconv.ParseFloat(s, 64)
	case "date":
		return time.Parse(dateLayout, s)
	case "timestamp":
		return time.Parse(timestampLayout, s)
	default:
		return s, nil
	}
}

func columnType(columns []backend.Column, i int) string {
	if i < len(columns) {
		return columns[i].Type
	}
	return "varchar"
}

func columnName(columns []backend.Column, i int) string {
	if i < len(columns) {
		return columns[i].Name
	}
	return strconv.Itoa(i)
}
