// Package athena implements the cloud backend on Amazon Athena.
//
// Statements are submitted with StartQueryExecution and polled until they
// reach a terminal state. The default cursor pages rows through
// GetQueryResults. The dataframe cursor, cached for the lifetime of the
// backend, downloads the CSV result object Athena writes to S3 instead,
// which is much faster for large results.
package athena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	awsathena "github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/schema"
)

// ErrQueryFailed is returned when a query ends in the FAILED or CANCELLED state.
var ErrQueryFailed = errors.New("athena query failed")

// DefaultPollInterval is the delay between GetQueryExecution calls.
const DefaultPollInterval = time.Second

// Config contains configuration for the Athena backend.
type Config struct {
	// Region is the AWS region of the workgroup.
	Region string

	// Workgroup that queries run in.
	// OPTIONAL: Athena uses the "primary" workgroup if empty.
	Workgroup string

	// Profile is a named profile from the shared credentials file.
	// Credentials from the environment take precedence over it.
	Profile string

	// SchemaName is the Athena database queries run against.
	SchemaName string

	// PollInterval between query state checks.
	// OPTIONAL: Uses DefaultPollInterval if zero.
	PollInterval time.Duration

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator
}

// Backend is the Athena cloud backend.
type Backend struct {
	schemaName   string
	workgroup    string
	pollInterval time.Duration

	athena athenaiface.AthenaAPI
	s3     s3iface.S3API

	dataFrameCursor *DataFrameCursor
	parser          *schema.Parser
	alloc           memory.Allocator
	logger          *slog.Logger
	closed          bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates an AWS session for cfg and returns a backend using it.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.SchemaName == "" {
		return nil, errors.New("athena: schema name is required")
	}

	awsConfig := &aws.Config{
		// retry on ephemeral AWS errors
		Retryer:     client.DefaultRetryer{NumMaxRetries: 10},
		Credentials: credentialsFor(cfg.Profile),
	}
	if cfg.Region != "" {
		awsConfig.Region = aws.String(cfg.Region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	b := NewWithClients(cfg, awsathena.New(sess), s3.New(sess))
	b.logger.Info("Athena backend opened",
		"region", aws.StringValue(sess.Config.Region),
		"workgroup", cfg.Workgroup,
		"schema", cfg.SchemaName)
	return b, nil
}

// NewWithClients returns a backend using the given service clients.
// Region and Profile in cfg are ignored.
func NewWithClients(cfg Config, athenaClient athenaiface.AthenaAPI, s3Client s3iface.S3API) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	b := &Backend{
		schemaName:   cfg.SchemaName,
		workgroup:    cfg.Workgroup,
		pollInterval: poll,
		athena:       athenaClient,
		s3:           s3Client,
		parser:       schema.NewParser("athena"),
		alloc:        alloc,
		logger:       logger,
	}
	b.dataFrameCursor = &DataFrameCursor{Cursor: Cursor{backend: b}}
	return b
}

// SchemaName implements backend.Backend.
func (b *Backend) SchemaName() string {
	return b.schemaName
}

// Cursor implements backend.Backend. Each call returns a new cursor.
func (b *Backend) Cursor() backend.Cursor {
	return &Cursor{backend: b}
}

// DataFrameCursor implements backend.Backend. It returns the cursor cached
// when the backend was created.
func (b *Backend) DataFrameCursor() backend.DataFrameCursor {
	return b.dataFrameCursor
}

// ExecuteAsDataFrame implements backend.Backend. It runs query on the cached
// dataframe cursor.
func (b *Backend) ExecuteAsDataFrame(ctx context.Context, query string) (arrow.Table, error) {
	if err := b.dataFrameCursor.Execute(ctx, query); err != nil {
		return nil, err
	}
	return b.dataFrameCursor.AsDataFrame()
}

// Parser implements backend.Backend.
func (b *Backend) Parser() *schema.Parser {
	return b.parser
}

// Close implements backend.Backend. Athena holds no connection, so Close only
// invalidates the backend and its cursors.
func (b *Backend) Close() error {
	if b.closed {
		return backend.ErrClosed
	}
	b.closed = true
	b.dataFrameCursor.rows = nil
	b.logger.Info("Athena backend closed", "schema", b.schemaName)
	return nil
}
