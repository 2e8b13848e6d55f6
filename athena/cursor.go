package athena

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/aws/aws-sdk-go/aws"
	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/google/uuid"

	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/dataframe"
)

// Cursor runs statements and pages their results through GetQueryResults.
// It implements backend.DataFrameCursor. Cursor is not goroutine-safe.
type Cursor struct {
	backend *Backend

	queryID string
	rows    *backend.Rows
}

var _ backend.DataFrameCursor = (*Cursor)(nil)

// Execute implements backend.Cursor.
func (c *Cursor) Execute(ctx context.Context, query string) error {
	c.reset()
	exec, err := c.backend.run(ctx, query)
	if err != nil {
		return err
	}
	columns, data, err := c.backend.pageResults(ctx, exec)
	if err != nil {
		return err
	}
	c.queryID = aws.StringValue(exec.QueryExecutionId)
	c.rows = backend.NewRows(columns, data)
	return nil
}

// reset drops the previous result so a failed Execute leaves no rows behind.
func (c *Cursor) reset() {
	c.queryID = ""
	c.rows = nil
}

// QueryID returns the execution id of the last statement.
func (c *Cursor) QueryID() string {
	return c.queryID
}

// Description implements backend.Cursor.
func (c *Cursor) Description() []backend.Column {
	if c.rows == nil {
		return nil
	}
	return c.rows.Columns()
}

// FetchOne implements backend.Cursor.
func (c *Cursor) FetchOne() ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.rows.Next(), nil
}

// FetchMany implements backend.Cursor.
func (c *Cursor) FetchMany(n int) ([][]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	return c.rows.Take(n), nil
}

// FetchAll implements backend.Cursor.
func (c *Cursor) FetchAll() ([][]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.rows.Take(-1), nil
}

// AsDataFrame implements backend.DataFrameCursor.
func (c *Cursor) AsDataFrame() (arrow.Table, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return dataframe.FromRows(c.backend.alloc, c.rows.Columns(), c.rows.Take(-1))
}

func (c *Cursor) ready() error {
	if c.backend.closed {
		return backend.ErrClosed
	}
	if c.rows == nil {
		return backend.ErrNoResult
	}
	return nil
}

// run starts query and blocks until it reaches a terminal state. If ctx is
// cancelled first, the execution is stopped and ctx.Err() returned.
func (b *Backend) run(ctx context.Context, query string) (*awsathena.QueryExecution, error) {
	if b.closed {
		return nil, backend.ErrClosed
	}
	b.logger.Debug("Executing statement", "backend", "athena", "sql", query)

	input := &awsathena.StartQueryExecutionInput{
		QueryString:           aws.String(query),
		QueryExecutionContext: &awsathena.QueryExecutionContext{Database: aws.String(b.schemaName)},
		ClientRequestToken:    aws.String(uuid.NewString()),
	}
	if b.workgroup != "" {
		input.WorkGroup = aws.String(b.workgroup)
	}
	started, err := b.athena.StartQueryExecutionWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("start query: %w", err)
	}
	id := started.QueryExecutionId

	var lastState string
	for {
		out, err := b.athena.GetQueryExecutionWithContext(ctx, &awsathena.GetQueryExecutionInput{QueryExecutionId: id})
		if err != nil {
			return nil, fmt.Errorf("get query execution %s: %w", aws.StringValue(id), err)
		}
		exec := out.QueryExecution
		state := aws.StringValue(exec.Status.State)
		if state != lastState {
			b.logger.Debug("Athena query state", "query_id", aws.StringValue(id), "state", state)
			lastState = state
		}

		switch state {
		case awsathena.QueryExecutionStateSucceeded:
			return exec, nil
		case awsathena.QueryExecutionStateFailed, awsathena.QueryExecutionStateCancelled:
			return nil, fmt.Errorf("%w: %s %s: %s", ErrQueryFailed, aws.StringValue(id), state,
				aws.StringValue(exec.Status.StateChangeReason))
		}

		timer := time.NewTimer(b.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.stop(id)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Backend) stop(id *string) {
	_, err := b.athena.StopQueryExecutionWithContext(context.Background(),
		&awsathena.StopQueryExecutionInput{QueryExecutionId: id})
	if err != nil {
		b.logger.Warn("Failed to stop Athena query", "query_id", aws.StringValue(id), "error", err)
	}
}

// pageResults reads every result row of exec. For DML statements (SELECT
// included) the first row of the first page repeats the column names and is
// skipped.
func (b *Backend) pageResults(ctx context.Context, exec *awsathena.QueryExecution) ([]backend.Column, [][]any, error) {
	var (
		columns []backend.Column
		data    [][]any
		convErr error
	)
	skipHeader := aws.StringValue(exec.StatementType) == awsathena.StatementTypeDml

	first := true
	err := b.athena.GetQueryResultsPagesWithContext(ctx,
		&awsathena.GetQueryResultsInput{QueryExecutionId: exec.QueryExecutionId},
		func(page *awsathena.GetQueryResultsOutput, lastPage bool) bool {
			rs := page.ResultSet
			if rs == nil {
				return !lastPage
			}
			if columns == nil && rs.ResultSetMetadata != nil {
				columns = columnsOf(rs.ResultSetMetadata)
			}
			rows := rs.Rows
			if first && skipHeader && len(rows) > 0 {
				rows = rows[1:]
			}
			first = false

			for _, r := range rows {
				row, err := convertRow(columns, r.Data)
				if err != nil {
					convErr = err
					return false
				}
				data = append(data, row)
			}
			return !lastPage
		})
	if err != nil {
		return nil, nil, fmt.Errorf("get query results %s: %w", aws.StringValue(exec.QueryExecutionId), err)
	}
	if convErr != nil {
		return nil, nil, convErr
	}
	return columns, data, nil
}

// resultColumns fetches only the result metadata of exec.
func (b *Backend) resultColumns(ctx context.Context, exec *awsathena.QueryExecution) ([]backend.Column, error) {
	out, err := b.athena.GetQueryResultsWithContext(ctx, &awsathena.GetQueryResultsInput{
		QueryExecutionId: exec.QueryExecutionId,
		MaxResults:       aws.Int64(1),
	})
	if err != nil {
		return nil, fmt.Errorf("get result metadata %s: %w", aws.StringValue(exec.QueryExecutionId), err)
	}
	if out.ResultSet == nil || out.ResultSet.ResultSetMetadata == nil {
		return nil, nil
	}
	return columnsOf(out.ResultSet.ResultSetMetadata), nil
}

func columnsOf(meta *awsathena.ResultSetMetadata) []backend.Column {
	columns := make([]backend.Column, len(meta.ColumnInfo))
	for i, ci := range meta.ColumnInfo {
		columns[i] = backend.Column{Name: aws.StringValue(ci.Name), Type: aws.StringValue(ci.Type)}
	}
	return columns
}
