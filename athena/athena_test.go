package athena

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/go-cmp/cmp"

	"github.com/hugr-lab/studydb/backend"
)

// fakeAthena serves one canned execution. GetQueryExecution walks through
// states, repeating the last one.
type fakeAthena struct {
	athenaiface.AthenaAPI

	states        []string
	reason        string
	statementType string
	output        string
	pages         []*awsathena.GetQueryResultsOutput

	started []*awsathena.StartQueryExecutionInput
	polls   int
	stopped int
}

func (f *fakeAthena) StartQueryExecutionWithContext(_ aws.Context, in *awsathena.StartQueryExecutionInput, _ ...request.Option) (*awsathena.StartQueryExecutionOutput, error) {
	f.started = append(f.started, in)
	return &awsathena.StartQueryExecutionOutput{QueryExecutionId: aws.String("q-1")}, nil
}

func (f *fakeAthena) GetQueryExecutionWithContext(_ aws.Context, in *awsathena.GetQueryExecutionInput, _ ...request.Option) (*awsathena.GetQueryExecutionOutput, error) {
	state := f.states[min(f.polls, len(f.states)-1)]
	f.polls++
	return &awsathena.GetQueryExecutionOutput{QueryExecution: &awsathena.QueryExecution{
		QueryExecutionId: in.QueryExecutionId,
		StatementType:    aws.String(f.statementType),
		Status: &awsathena.QueryExecutionStatus{
			State:             aws.String(state),
			StateChangeReason: aws.String(f.reason),
		},
		ResultConfiguration: &awsathena.ResultConfiguration{OutputLocation: aws.String(f.output)},
	}}, nil
}

func (f *fakeAthena) GetQueryResultsPagesWithContext(_ aws.Context, _ *awsathena.GetQueryResultsInput, fn func(*awsathena.GetQueryResultsOutput, bool) bool, _ ...request.Option) error {
	for i, p := range f.pages {
		if !fn(p, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeAthena) GetQueryResultsWithContext(_ aws.Context, _ *awsathena.GetQueryResultsInput, _ ...request.Option) (*awsathena.GetQueryResultsOutput, error) {
	return f.pages[0], nil
}

func (f *fakeAthena) StopQueryExecutionWithContext(_ aws.Context, _ *awsathena.StopQueryExecutionInput, _ ...request.Option) (*awsathena.StopQueryExecutionOutput, error) {
	f.stopped++
	return &awsathena.StopQueryExecutionOutput{}, nil
}

type fakeS3 struct {
	s3iface.S3API

	objects map[string]string
	gets    []string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	f.gets = append(f.gets, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func datumRow(values ...*string) *awsathena.Row {
	row := &awsathena.Row{}
	for _, v := range values {
		row.Data = append(row.Data, &awsathena.Datum{VarCharValue: v})
	}
	return row
}

func page(columns [][2]string, rows ...*awsathena.Row) *awsathena.GetQueryResultsOutput {
	meta := &awsathena.ResultSetMetadata{}
	for _, c := range columns {
		meta.ColumnInfo = append(meta.ColumnInfo, &awsathena.ColumnInfo{Name: aws.String(c[0]), Type: aws.String(c[1])})
	}
	return &awsathena.GetQueryResultsOutput{ResultSet: &awsathena.ResultSet{ResultSetMetadata: meta, Rows: rows}}
}

var patientColumns = [][2]string{{"id", "varchar"}, {"n", "bigint"}, {"born", "date"}}

func newSelectFake() *fakeAthena {
	return &fakeAthena{
		states:        []string{"QUEUED", "RUNNING", "SUCCEEDED"},
		statementType: awsathena.StatementTypeDml,
		output:        "s3://results/q-1.csv",
		pages: []*awsathena.GetQueryResultsOutput{
			page(patientColumns,
				datumRow(aws.String("id"), aws.String("n"), aws.String("born")),
				datumRow(aws.String("p1"), aws.String("7"), aws.String("1990-04-05")),
			),
			page(patientColumns,
				datumRow(aws.String("p2"), nil, nil),
			),
		},
	}
}

func newTestBackend(fa *fakeAthena, fs *fakeS3) *Backend {
	if fs == nil {
		fs = &fakeS3{}
	}
	return NewWithClients(Config{
		SchemaName:   "study",
		Workgroup:    "analytics",
		PollInterval: time.Millisecond,
	}, fa, fs)
}

func TestCursor_Execute(t *testing.T) {
	fa := newSelectFake()
	b := newTestBackend(fa, nil)
	cur := b.Cursor()

	if err := cur.Execute(context.Background(), "SELECT * FROM patient"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(fa.started) != 1 {
		t.Fatalf("expected 1 StartQueryExecution call, got %d", len(fa.started))
	}
	in := fa.started[0]
	if got := aws.StringValue(in.QueryExecutionContext.Database); got != "study" {
		t.Errorf("Database = %q, want study", got)
	}
	if got := aws.StringValue(in.WorkGroup); got != "analytics" {
		t.Errorf("WorkGroup = %q, want analytics", got)
	}
	if len(aws.StringValue(in.ClientRequestToken)) < 32 {
		t.Errorf("ClientRequestToken too short: %q", aws.StringValue(in.ClientRequestToken))
	}
	if fa.polls != 3 {
		t.Errorf("expected 3 polls, got %d", fa.polls)
	}

	wantDesc := []backend.Column{{Name: "id", Type: "varchar"}, {Name: "n", Type: "bigint"}, {Name: "born", Type: "date"}}
	if diff := cmp.Diff(wantDesc, cur.Description()); diff != "" {
		t.Errorf("Description mismatch (-want +got):\n%s", diff)
	}

	rows, err := cur.FetchAll()
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	want := [][]any{
		{"p1", int64(7), time.Date(1990, 4, 5, 0, 0, 0, 0, time.UTC)},
		{"p2", nil, nil},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCursor_DDLKeepsFirstRow(t *testing.T) {
	fa := &fakeAthena{
		states:        []string{"SUCCEEDED"},
		statementType: awsathena.StatementTypeUtility,
		pages: []*awsathena.GetQueryResultsOutput{
			page([][2]string{{"tab_name", "string"}}, datumRow(aws.String("patient")), datumRow(aws.String("encounter"))),
		},
	}
	cur := newTestBackend(fa, nil).Cursor()

	if err := cur.Execute(context.Background(), "SHOW TABLES"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	rows, _ := cur.FetchAll()
	if len(rows) != 2 || rows[0][0] != "patient" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestCursor_QueryFailed(t *testing.T) {
	fa := &fakeAthena{states: []string{"RUNNING", "FAILED"}, reason: "TABLE_NOT_FOUND: patient"}
	cur := newTestBackend(fa, nil).Cursor()

	err := cur.Execute(context.Background(), "SELECT * FROM patient")
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "TABLE_NOT_FOUND") {
		t.Errorf("error should carry the state change reason: %v", err)
	}
	if _, err := cur.FetchOne(); !errors.Is(err, backend.ErrNoResult) {
		t.Errorf("expected ErrNoResult after failed Execute, got %v", err)
	}
}

func TestCursor_FailedExecuteClearsResult(t *testing.T) {
	fa := newSelectFake()
	fs := &fakeS3{objects: map[string]string{"results/q-1.csv": "\"id\",\"n\",\"born\"\n\"p1\",\"7\",\"1990-04-05\"\n"}}
	b := newTestBackend(fa, fs)
	ctx := context.Background()

	cursors := map[string]backend.DataFrameCursor{
		"cursor":           b.Cursor().(*Cursor),
		"dataframe cursor": b.DataFrameCursor(),
	}
	for name, cur := range cursors {
		t.Run(name, func(t *testing.T) {
			fa.states, fa.polls = []string{"SUCCEEDED"}, 0
			if err := cur.Execute(ctx, "SELECT * FROM patient"); err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			fa.states, fa.polls = []string{"FAILED"}, 0
			if err := cur.Execute(ctx, "SELECT * FROM missing"); !errors.Is(err, ErrQueryFailed) {
				t.Fatalf("expected ErrQueryFailed, got %v", err)
			}

			if rows, err := cur.FetchAll(); !errors.Is(err, backend.ErrNoResult) {
				t.Errorf("FetchAll after failed Execute = %v, %v; want ErrNoResult", rows, err)
			}
			if _, err := cur.AsDataFrame(); !errors.Is(err, backend.ErrNoResult) {
				t.Errorf("AsDataFrame after failed Execute: expected ErrNoResult, got %v", err)
			}
			if desc := cur.Description(); desc != nil {
				t.Errorf("Description after failed Execute = %+v, want nil", desc)
			}
		})
	}
}

func TestCursor_ContextCancelStopsQuery(t *testing.T) {
	fa := &fakeAthena{states: []string{"RUNNING"}}
	cur := newTestBackend(fa, nil).Cursor()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := cur.Execute(ctx, "SELECT 1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if fa.stopped != 1 {
		t.Errorf("expected the query to be stopped once, got %d", fa.stopped)
	}
}

func TestBackend_Cursors(t *testing.T) {
	b := newTestBackend(newSelectFake(), nil)

	if b.Cursor() == b.Cursor() {
		t.Error("Cursor should return a new cursor per call")
	}
	if b.DataFrameCursor() != b.DataFrameCursor() {
		t.Error("DataFrameCursor should return the cached cursor")
	}
	if b.SchemaName() != "study" {
		t.Errorf("SchemaName = %q", b.SchemaName())
	}
	if b.Parser().Dialect() != "athena" {
		t.Errorf("Parser dialect = %q", b.Parser().Dialect())
	}
}

func TestBackend_ExecuteAsDataFrameReadsResultObject(t *testing.T) {
	fa := newSelectFake()
	fs := &fakeS3{objects: map[string]string{
		"results/q-1.csv": "\"id\",\"n\",\"born\"\n\"p1\",\"7\",\"1990-04-05\"\n\"p2\",,\n\"p3\",\"9\",\"2001-12-31\"\n",
	}}
	b := newTestBackend(fa, fs)

	tbl, err := b.ExecuteAsDataFrame(context.Background(), "SELECT * FROM patient")
	if err != nil {
		t.Fatalf("ExecuteAsDataFrame failed: %v", err)
	}
	defer tbl.Release()

	if diff := cmp.Diff([]string{"results/q-1.csv"}, fs.gets); diff != "" {
		t.Errorf("S3 reads mismatch (-want +got):\n%s", diff)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}
	if got := tbl.Schema().Field(1).Type; !arrow.TypeEqual(got, arrow.PrimitiveTypes.Int64) {
		t.Errorf("n type = %s, want int64", got)
	}

	n := tbl.Column(1).Data().Chunk(0).(*array.Int64)
	if n.Value(0) != 7 || !n.IsNull(1) || n.Value(2) != 9 {
		t.Errorf("unexpected n column: %v", n)
	}
}

func TestBackend_ExecuteAsDataFramePagesWithoutOutput(t *testing.T) {
	fa := newSelectFake()
	fa.output = ""
	fs := &fakeS3{}
	b := newTestBackend(fa, fs)

	tbl, err := b.ExecuteAsDataFrame(context.Background(), "SELECT * FROM patient")
	if err != nil {
		t.Fatalf("ExecuteAsDataFrame failed: %v", err)
	}
	defer tbl.Release()

	if len(fs.gets) != 0 {
		t.Errorf("expected no S3 reads, got %v", fs.gets)
	}
	if tbl.NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", tbl.NumRows())
	}
}

func TestBackend_Closed(t *testing.T) {
	b := newTestBackend(newSelectFake(), nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Close(); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("second Close: expected ErrClosed, got %v", err)
	}
	if err := b.Cursor().Execute(context.Background(), "SELECT 1"); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("Execute: expected ErrClosed, got %v", err)
	}
	if _, err := b.ExecuteAsDataFrame(context.Background(), "SELECT 1"); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("ExecuteAsDataFrame: expected ErrClosed, got %v", err)
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		typ     string
		in      string
		want    any
		wantErr bool
	}{
		{"varchar", "abc", "abc", false},
		{"boolean", "true", true, false},
		{"integer", "-3", int64(-3), false},
		{"BIGINT", "9000000000", int64(9000000000), false},
		{"double", "1.5", 1.5, false},
		{"date", "2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"timestamp", "2024-01-02 03:04:05.123", time.Date(2024, 1, 2, 3, 4, 5, 123000000, time.UTC), false},
		{"decimal", "1.10", "1.10", false},
		{"array", "[a, b]", "[a, b]", false},
		{"bigint", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.in, func(t *testing.T) {
			got, err := convertValue(tt.typ, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCredentialsFor(t *testing.T) {
	if credentialsFor("") != nil {
		t.Error("expected nil credentials without a profile")
	}

	file := filepath.Join(t.TempDir(), "credentials")
	content := "[study]\naws_access_key_id = PROFILEKEY\naws_secret_access_key = PROFILESECRET\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", file)

	t.Run("profile", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "")
		t.Setenv("AWS_ACCESS_KEY", "")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "")
		t.Setenv("AWS_SECRET_KEY", "")

		v, err := credentialsFor("study").Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if v.AccessKeyID != "PROFILEKEY" {
			t.Errorf("AccessKeyID = %q, want PROFILEKEY", v.AccessKeyID)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "ENVKEY")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "ENVSECRET")
		t.Setenv("AWS_SESSION_TOKEN", "ENVTOKEN")

		v, err := credentialsFor("study").Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if v.AccessKeyID != "ENVKEY" || v.SessionToken != "ENVTOKEN" {
			t.Errorf("unexpected credentials: %+v", v)
		}
	})
}
