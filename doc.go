// Package studydb provides a portable SQL runtime for analytics studies over
// FHIR data.
//
// The same study SQL runs against either backend:
//   - Amazon Athena (package athena) for data already in the warehouse
//   - an embedded DuckDB database (package duckdb) for local runs, optionally
//     loaded from directories of FHIR NDJSON exports
//
// The embedded backend registers functions that emulate the Athena dialect
// (array_join, from_iso8601_timestamp, to_utf8) and relies on DuckDB's own
// date(x) cast, so study SQL does not need to branch on the backend in use. The only backend-specific piece a
// study sees is the schema parser returned by Backend.Parser.
//
// # Quick Start
//
//	b, err := studydb.NewBackendFromMap(ctx, map[string]any{
//	    "db_type":         "duckdb",
//	    "load_ndjson_dir": "./export",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	cur := b.Cursor()
//	if err := cur.Execute(ctx, "SELECT COUNT(*) FROM patient"); err != nil {
//	    log.Fatal(err)
//	}
//	row, _ := cur.FetchOne()
//
// # Schema Validation
//
// ValidateTable checks which expected columns, and which members of struct
// columns, a table actually has:
//
//	report, err := studydb.ValidateTable(ctx, b, "condition", schema.Expected{
//	    "recordedDate": nil,
//	    "subject":      {"reference"},
//	})
//
// # Logging
//
// Every package logs through log/slog. Pass Config.Logger or Config.LogLevel
// to control it; otherwise slog.Default() is used.
//
// # Memory Management
//
// Dataframes are Arrow tables. Callers MUST call Release() on tables returned
// by ExecuteAsDataFrame and AsDataFrame.
package studydb
