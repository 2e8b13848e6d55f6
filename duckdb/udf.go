package duckdb

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	ddb "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/studydb/compat"
	"github.com/hugr-lab/studydb/internal/recovery"
)

// scalarFunc adapts a row function to ddb.ScalarFunc.
type scalarFunc struct {
	config   ddb.ScalarFuncConfig
	executor ddb.ScalarFuncExecutor
}

func (f *scalarFunc) Config() ddb.ScalarFuncConfig     { return f.config }
func (f *scalarFunc) Executor() ddb.ScalarFuncExecutor { return f.executor }

type rowFunc func(values []driver.Value) (any, error)

// newScalarFunc builds a function with default NULL handling: any NULL
// argument yields NULL without calling fn.
func newScalarFunc(logger *slog.Logger, name string, inputs []ddb.TypeInfo, result ddb.TypeInfo, fn rowFunc) *scalarFunc {
	return &scalarFunc{
		config: ddb.ScalarFuncConfig{
			InputTypeInfos: inputs,
			ResultTypeInfo: result,
		},
		executor: ddb.ScalarFuncExecutor{
			RowExecutor: func(values []driver.Value) (any, error) {
				return recovery.Call(logger, name, values, func() (any, error) {
					return fn(values)
				})
			},
		},
	}
}

// registerCompatFunctions installs the cloud-dialect compatibility functions on conn.
//
// date is not registered: DuckDB parses date(x) as CAST(x AS DATE) before
// function lookup, so a date function would never be called.
func registerCompatFunctions(conn *sql.Conn, logger *slog.Logger) error {
	varchar, err := ddb.NewTypeInfo(ddb.TYPE_VARCHAR)
	if err != nil {
		return err
	}
	anyType, err := ddb.NewTypeInfo(ddb.TYPE_ANY)
	if err != nil {
		return err
	}
	timestamp, err := ddb.NewTypeInfo(ddb.TYPE_TIMESTAMP)
	if err != nil {
		return err
	}

	funcs := []struct {
		name string
		fn   *scalarFunc
	}{
		// The list argument is ANY so lists of any element type are accepted.
		{"array_join", newScalarFunc(logger, "array_join", []ddb.TypeInfo{anyType, varchar}, varchar, arrayJoin)},
		{"from_iso8601_timestamp", newScalarFunc(logger, "from_iso8601_timestamp", []ddb.TypeInfo{varchar}, timestamp, fromISO8601Timestamp)},
		{"to_utf8", newScalarFunc(logger, "to_utf8", []ddb.TypeInfo{varchar}, varchar, toUTF8)},
	}
	for _, f := range funcs {
		if err := ddb.RegisterScalarUDF(conn, f.name, f.fn); err != nil {
			return fmt.Errorf("register function %s: %w", f.name, err)
		}
	}
	return nil
}

func arrayJoin(values []driver.Value) (any, error) {
	list, ok := values[0].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: array_join expects a list, got %T", compat.ErrBadValue, values[0])
	}
	if list == nil {
		// NULL lists never reach the executor; a nil slice here is an empty list.
		list = []any{}
	}
	delimiter, err := stringArg("array_join", values[1])
	if err != nil {
		return nil, err
	}
	if out := compat.ArrayJoin(list, delimiter); out != nil {
		return *out, nil
	}
	return nil, nil
}

func fromISO8601Timestamp(values []driver.Value) (any, error) {
	s, err := stringArg("from_iso8601_timestamp", values[0])
	if err != nil {
		return nil, err
	}
	return compat.FromISO8601Timestamp(s)
}

func toUTF8(values []driver.Value) (any, error) {
	s, err := stringArg("to_utf8", values[0])
	if err != nil {
		return nil, err
	}
	return compat.ToUTF8(s), nil
}

func stringArg(function string, v driver.Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s expects a string, got %T", compat.ErrBadValue, function, v)
	}
	return s, nil
}
