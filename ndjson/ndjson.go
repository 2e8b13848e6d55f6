// Package ndjson loads directories of newline-delimited FHIR JSON into Arrow tables.
//
// The expected layout is one folder per resource, named by the lowercased
// resource type:
//
//	<root>/
//	  patient/*.ndjson
//	  encounter/*.ndjson
//	  ...
//
// Every resource in Resources is always materialized. A missing folder, or a
// folder without .ndjson files, yields an empty table that still carries the
// resource's schema.
package ndjson

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"

	"github.com/hugr-lab/studydb/fhirschema"
)

// Resources is the fixed list of FHIR resources materialized by ReadDir.
var Resources = []string{
	"AllergyIntolerance",
	"Condition",
	"Device",
	"DiagnosticReport",
	"DocumentReference",
	"Encounter",
	"Immunization",
	"Medication",
	"MedicationRequest",
	"Observation",
	"Patient",
	"Procedure",
	"ServiceRequest",
}

// Extension is the suffix of files read by ReadDir.
const Extension = ".ndjson"

// Options configures ReadDir.
type Options struct {
	// Allocator for Arrow memory.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for load progress.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// TableName returns the table key for a resource type.
func TableName(resource string) string {
	return strings.ToLower(resource)
}

// ReadDir loads every resource in Resources from dir.
// The result maps the lowercased resource name to its table.
// Caller MUST call Release on every returned table.
func ReadDir(dir string, opts Options) (map[string]arrow.Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tables := make(map[string]arrow.Table, len(Resources))
	for _, resource := range Resources {
		name := TableName(resource)

		rows, files, err := readResource(filepath.Join(dir, name))
		if err != nil {
			ReleaseTables(tables)
			return nil, fmt.Errorf("load %s: %w", resource, err)
		}

		schema := fhirschema.SchemaFromRows(resource, rows)
		tbl, err := fhirschema.TableFromRows(opts.Allocator, schema, rows)
		if err != nil {
			ReleaseTables(tables)
			return nil, fmt.Errorf("build %s table: %w", resource, err)
		}
		tables[name] = tbl

		logger.Debug("NDJSON resource loaded",
			"resource", resource,
			"files", files,
			"rows", len(rows),
		)
	}
	return tables, nil
}

// ReleaseTables releases every table in tables.
func ReleaseTables(tables map[string]arrow.Table) {
	for _, t := range tables {
		t.Release()
	}
}

// Files returns the .ndjson files directly inside folder in sorted order.
// A missing folder yields no files and no error.
func Files(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readResource(folder string) ([]map[string]any, int, error) {
	files, err := Files(folder)
	if err != nil {
		return nil, 0, err
	}

	var rows []map[string]any
	for _, path := range files {
		rows, err = readFile(path, rows)
		if err != nil {
			return nil, 0, err
		}
	}
	return rows, len(files), nil
}

// readFile appends the records of one NDJSON file to rows.
func readFile(path string, rows []map[string]any) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, readErr)
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			row, err := decodeLine(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			rows = append(rows, row)
		}

		if readErr == io.EOF {
			return rows, nil
		}
	}
}

func decodeLine(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("line is not a JSON object")
	}
	return row, nil
}
