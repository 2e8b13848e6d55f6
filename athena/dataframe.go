package athena

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/hugr-lab/studydb/backend"
)

// DataFrameCursor is the backend's cached dataframe cursor. For statements
// that produce a result set it reads the CSV result object from S3; other
// statements are paged like Cursor.
type DataFrameCursor struct {
	Cursor
}

var _ backend.DataFrameCursor = (*DataFrameCursor)(nil)

// Execute implements backend.Cursor.
func (c *DataFrameCursor) Execute(ctx context.Context, query string) error {
	c.reset()
	b := c.backend
	exec, err := b.run(ctx, query)
	if err != nil {
		return err
	}

	var (
		columns []backend.Column
		data    [][]any
	)
	location := outputLocation(exec)
	if aws.StringValue(exec.StatementType) == awsathena.StatementTypeDml && strings.HasPrefix(location, "s3://") {
		columns, data, err = b.readResultObject(ctx, exec, location)
	} else {
		columns, data, err = b.pageResults(ctx, exec)
	}
	if err != nil {
		return err
	}

	c.queryID = aws.StringValue(exec.QueryExecutionId)
	c.rows = backend.NewRows(columns, data)
	return nil
}

func outputLocation(exec *awsathena.QueryExecution) string {
	if exec.ResultConfiguration == nil {
		return ""
	}
	return aws.StringValue(exec.ResultConfiguration.OutputLocation)
}

// readResultObject downloads and parses the CSV Athena wrote to location.
// The CSV carries no type information, so column types come from the result
// metadata. Empty fields are read as NULL.
func (b *Backend) readResultObject(ctx context.Context, exec *awsathena.QueryExecution, location string) ([]backend.Column, [][]any, error) {
	columns, err := b.resultColumns(ctx, exec)
	if err != nil {
		return nil, nil, err
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing S3 URL %v: %w", location, err)
	}
	obj, err := b.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching S3 object %v: %w", location, err)
	}
	defer obj.Body.Close()
	b.logger.Debug("Reading Athena result object", "location", location)

	r := csv.NewReader(obj.Body)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return columns, nil, nil
		}
		return nil, nil, fmt.Errorf("reading %v: %w", location, err)
	}

	var data [][]any
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading %v: %w", location, err)
		}
		row := make([]any, len(record))
		for i, field := range record {
			if field == "" {
				continue
			}
			v, err := convertValue(columnType(columns, i), field)
			if err != nil {
				return nil, nil, fmt.Errorf("%v: column %s: %w", location, columnName(columns, i), err)
			}
			row[i] = v
		}
		data = append(data, row)
	}
	return columns, data, nil
}
