// Package compat implements the scalar functions the embedded engine lacks
// relative to the cloud warehouse dialect.
//
// The functions are pure and engine-independent. The duckdb package registers
// array_join, from_iso8601_timestamp and to_utf8 as user-defined functions so
// that study SQL written for the cloud dialect runs unchanged on DuckDB.
//
// Date is the strict form of the cloud date(x) function. DuckDB parses
// date(x) as a cast before function lookup, so on DuckDB the engine's own,
// more lenient cast applies instead; see Date.
package compat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadValue indicates a function received an argument it cannot interpret.
var ErrBadValue = errors.New("bad value")

// Kind tags the variant stored in a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindTimestamp
	KindDate
	KindOther
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "other"
	}
}

// Value is an argument to a dialect function whose SQL type varies per call site.
type Value struct {
	Kind Kind
	Str  string
	Time time.Time
	// Raw holds the original value for KindOther.
	Raw any
}

// Null returns the NULL value.
func Null() Value { return Value{Kind: KindNull} }

// StringValue wraps a VARCHAR argument.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// TimestampValue wraps a TIMESTAMP argument.
func TimestampValue(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// DateValue wraps a DATE argument. The clock portion of t is discarded.
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Time: truncateToDate(t)} }

// OtherValue wraps an argument of any type the functions do not understand.
func OtherValue(v any) Value { return Value{Kind: KindOther, Raw: v} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// ArrayJoin concatenates the non-NULL elements of values with delimiter.
// A nil slice is a NULL list and yields nil; an empty non-nil slice yields "".
// Non-string elements are formatted with fmt.Sprint.
func ArrayJoin(values []any, delimiter string) *string {
	if values == nil {
		return nil
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		switch v := v.(type) {
		case nil:
		case string:
			parts = append(parts, v)
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	out := strings.Join(parts, delimiter)
	return &out
}

// Date coerces v to a date.
//
//   - NULL passes through.
//   - A string is parsed as an ISO-8601 calendar date (YYYY-MM-DD).
//   - A timestamp is projected to its date portion.
//   - A date is returned unchanged.
//
// Any other input, or a malformed string, fails with ErrBadValue.
//
// DuckDB's CAST(x AS DATE) differs: it also accepts single-digit months and
// days ("2024-1-2") and strings with a time part, and reports other failures
// as conversion errors rather than ErrBadValue.
func Date(v Value) (Value, error) {
	switch v.Kind {
	case KindNull:
		return v, nil
	case KindString:
		t, err := time.Parse(time.DateOnly, v.Str)
		if err != nil {
			return Value{}, fmt.Errorf("%w: date(%q): %v", ErrBadValue, v.Str, err)
		}
		return DateValue(t), nil
	case KindTimestamp:
		return DateValue(v.Time), nil
	case KindDate:
		return v, nil
	default:
		return Value{}, fmt.Errorf("%w: date() does not accept %T", ErrBadValue, v.Raw)
	}
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// FromISO8601Timestamp parses s as an ISO-8601 timestamp.
//
// Values shorter than ten characters are treated as truncated dates:
// "YYYY" is January 1 of that year and "YYYY-MM" the first of that month.
// A trailing "Z" is read as "+00:00". Values carrying an offset are converted
// to UTC; the result is always a UTC time with no further zone information.
func FromISO8601Timestamp(s string) (time.Time, error) {
	if len(s) < 10 {
		return truncatedDate(s)
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: from_iso8601_timestamp(%q): not an ISO-8601 timestamp", ErrBadValue, s)
}

// ToUTF8 returns s unchanged. The cloud dialect hashes varbinary, so study SQL
// wraps strings in to_utf8; DuckDB hashes varchar directly.
func ToUTF8(s string) string { return s }

func truncatedDate(s string) (time.Time, error) {
	var layout string
	switch len(s) {
	case 4:
		layout = "2006"
	case 7:
		layout = "2006-01"
	default:
		return time.Time{}, fmt.Errorf("%w: from_iso8601_timestamp(%q): truncated date must be YYYY or YYYY-MM", ErrBadValue, s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: from_iso8601_timestamp(%q): %v", ErrBadValue, s, err)
	}
	return t, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
