// Package schema reports whether the columns and nested fields a study expects
// are present in a warehouse table.
//
// The check works from the raw result of an information_schema query: a list
// of (column name, type description) pairs. Type descriptions differ per engine
// (`row(reference varchar)` on Athena, `STRUCT(reference VARCHAR)` on DuckDB),
// so nested members are matched by case-insensitive substring search. False
// positives are possible when a member name occurs inside another member's
// type; the report is a first-pass signal, not a type check.
package schema

import (
	"fmt"
	"strings"
)

// Expected maps a column name to the nested member names expected inside it.
// An empty list marks a primitive column.
type Expected map[string][]string

// ColumnType is one row of an information_schema.columns result.
type ColumnType struct {
	Name string
	Type string
}

// Presence is either a Leaf (primitive column) or a Branch (structured column).
type Presence interface {
	isPresence()
}

// Leaf reports whether a primitive column exists.
type Leaf bool

// Branch reports, per expected member, whether a structured column contains it.
type Branch map[string]bool

func (Leaf) isPresence()   {}
func (Branch) isPresence() {}

// Report has the same keys as the Expected descriptor it was built from.
type Report map[string]Presence

// Present reports whether column (and, when members are given, every one of
// those members) was found. A structured column without members given counts
// as found when at least one of its expected members was found.
func (r Report) Present(column string, members ...string) bool {
	switch p := r[column].(type) {
	case Leaf:
		return bool(p) && len(members) == 0
	case Branch:
		if len(members) == 0 {
			for _, found := range p {
				if found {
					return true
				}
			}
			return false
		}
		for _, m := range members {
			if !p[m] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Parser validates expected schemas against information_schema output.
type Parser struct {
	dialect string
}

// NewParser returns a parser for the named dialect ("athena" or "duckdb").
func NewParser(dialect string) *Parser {
	return &Parser{dialect: dialect}
}

// Dialect returns the engine dialect this parser was created for.
func (p *Parser) Dialect() string {
	return p.dialect
}

// ValidateTableSchema builds a presence report for expected against raw.
// Column names in raw are matched case-insensitively.
func (p *Parser) ValidateTableSchema(expected Expected, raw []ColumnType) Report {
	observed := make(map[string]string, len(raw))
	for _, c := range raw {
		observed[strings.ToLower(c.Name)] = c.Type
	}

	report := make(Report, len(expected))
	for column, members := range expected {
		if len(members) == 0 {
			_, ok := observed[strings.ToLower(column)]
			report[column] = Leaf(ok)
			continue
		}

		typeDesc := strings.ToLower(observed[strings.ToLower(column)])
		branch := make(Branch, len(members))
		for _, m := range members {
			branch[m] = strings.Contains(typeDesc, strings.ToLower(m))
		}
		report[column] = branch
	}
	return report
}

// ColumnTypesFromRows converts cursor rows of (name, type) into ColumnTypes.
func ColumnTypesFromRows(rows [][]any) ([]ColumnType, error) {
	out := make([]ColumnType, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("schema row %d: want (name, type), got %d values", i, len(row))
		}
		name, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("schema row %d: column name is %T, not string", i, row[0])
		}
		typ, _ := row[1].(string)
		out = append(out, ColumnType{Name: name, Type: typ})
	}
	return out, nil
}
