// Package recovery converts panics in SQL scalar functions into query errors.
// A panic inside a DuckDB function executor would otherwise unwind through
// the C callback and take down the process.
package recovery

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrFunctionPanic marks the error returned for a scalar function that panicked.
var ErrFunctionPanic = errors.New("scalar function panicked")

// Call runs the executor of the SQL function named function on one row of
// args. A panic is logged with the row and the stack and returned as an error
// wrapping ErrFunctionPanic; the query fails instead of the process.
//
// Example:
//
//	result, err := recovery.Call(logger, "array_join", values, func() (any, error) {
//	    return arrayJoin(values)
//	})
func Call[T any](logger *slog.Logger, function string, args []driver.Value, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("SQL function panicked",
				"function", function,
				"args", fmt.Sprint(args),
				"panic", r,
				"stack", string(debug.Stack()),
			)

			var zero T
			result = zero
			err = fmt.Errorf("%w: %s(%d args): %v", ErrFunctionPanic, function, len(args), r)
		}
	}()

	return fn()
}
