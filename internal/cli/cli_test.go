package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/hugr-lab/studydb"
	"github.com/hugr-lab/studydb/schema"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func ndjsonDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "condition", "part-1.ndjson")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"resourceType":"Condition","id":"c1","recordedDate":"2020-01-01","subject":{"reference":"Patient/p1"}}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestQueryText(t *testing.T) {
	out, err := run(t, "query", "SELECT 1 AS n, 'a' AS s, NULL AS z, date('2024-01-02') AS d")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := "n\ts\tz\td\n1\ta\tNULL\t2024-01-02\n"
	if out != want {
		t.Errorf("output:\n%q\nwant:\n%q", out, want)
	}
}

func TestQueryJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "query", "SELECT array_join(['a', NULL, 'b'], '|') AS joined")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if diff := cmp.Diff([]map[string]any{{"joined": "a|b"}}, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryFromFileWithNDJSON(t *testing.T) {
	sqlFile := filepath.Join(t.TempDir(), "count.sql")
	if err := os.WriteFile(sqlFile, []byte("SELECT COUNT(*) AS c FROM condition"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--load-ndjson-dir", ndjsonDir(t), "query", "--file", sqlFile)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if out != "c\n1\n" {
		t.Errorf("output = %q", out)
	}
}

func TestQueryConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "studydb.yaml")
	cfg := "db_type: duckdb\nload_ndjson_dir: " + ndjsonDir(t) + "\n"
	if err := os.WriteFile(cfgFile, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgFile, "query", "SELECT id FROM condition")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if out != "id\nc1\n" {
		t.Errorf("output = %q", out)
	}
}

func TestQueryAthenaWithNDJSONFails(t *testing.T) {
	_, err := run(t, "--db-type", "athena", "--schema-name", "study", "--load-ndjson-dir", "./export", "query", "SELECT 1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "load_ndjson_dir") || !strings.Contains(err.Error(), "athena") {
		t.Errorf("error should name the unsupported combination: %v", err)
	}
}

func TestQueryArguments(t *testing.T) {
	if _, err := run(t, "query"); err == nil {
		t.Error("expected an error without a statement")
	}
	if _, err := run(t, "--format", "xml", "query", "SELECT 1"); err == nil {
		t.Error("expected an error for an invalid format")
	}
}

func TestValidate(t *testing.T) {
	out, err := run(t, "--load-ndjson-dir", ndjsonDir(t), "validate", "condition",
		"--expect", "recordedDate", "--expect", "subject:reference,display", "--expect", "abatement")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	want := "abatement\tmissing\n" +
		"recordedDate\tpresent\n" +
		"subject.display\tmissing\n" +
		"subject.reference\tpresent\n"
	if out != want {
		t.Errorf("output:\n%s\nwant:\n%s", out, want)
	}
}

func TestParseExpected(t *testing.T) {
	got, err := parseExpected([]string{"recordedDate", "subject:reference, display", "code:"})
	if err != nil {
		t.Fatalf("parseExpected failed: %v", err)
	}
	want := schema.Expected{
		"recordedDate": nil,
		"subject":      {"reference", "display"},
		"code":         nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseExpected(nil); err == nil {
		t.Error("expected an error without --expect")
	}
	if _, err := parseExpected([]string{":reference"}); err == nil {
		t.Error("expected an error for an empty column")
	}
}

func TestOptionsFlagsOverrideFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "studydb.yaml")
	if err := os.WriteFile(cfgFile, []byte("db_type: athena\nschema_name: prod\nregion: us-east-1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCommand()
	if err := cmd.ParseFlags([]string{"--config", cfgFile, "--schema-name", "dev"}); err != nil {
		t.Fatal(err)
	}
	opts := &RootOptions{ConfigFile: cfgFile, DBType: studydb.DBTypeDuckDB, SchemaName: "dev"}

	got, err := opts.options(cmd)
	if err != nil {
		t.Fatalf("options failed: %v", err)
	}
	want := map[string]any{"db_type": "athena", "schema_name": "dev", "region": "us-east-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
