package studydb

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/studydb/athena"
	"github.com/hugr-lab/studydb/backend"
	"github.com/hugr-lab/studydb/duckdb"
	"github.com/hugr-lab/studydb/ndjson"
)

// NewBackend opens the backend selected by cfg.DBType.
//
// For DuckDB, if cfg.LoadNDJSONDir is set every canonical FHIR resource is
// read from it and registered as a table, so queries can rely on all of them
// existing. Loading NDJSON into Athena is rejected with ErrInvalidConfig.
//
//	b, err := studydb.NewBackend(ctx, studydb.Config{
//	    DBType:        studydb.DBTypeDuckDB,
//	    LoadNDJSONDir: "./export",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
func NewBackend(ctx context.Context, cfg Config) (backend.Backend, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := cfg.logger()
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}

	switch cfg.DBType {
	case DBTypeAthena:
		b, err := athena.New(ctx, athena.Config{
			Region:       cfg.Region,
			Workgroup:    cfg.Workgroup,
			Profile:      cfg.Profile,
			SchemaName:   cfg.SchemaName,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
			Allocator:    allocator,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		path := cfg.DatabasePath
		if path == "" && cfg.SchemaName != "" {
			logger.Warn("schema_name as the DuckDB database path is deprecated, use database_path",
				"path", cfg.SchemaName)
			path = cfg.SchemaName
		}
		b, err := duckdb.New(ctx, duckdb.Config{Path: path, Logger: logger, Allocator: allocator})
		if err != nil {
			return nil, err
		}
		if cfg.LoadNDJSONDir != "" {
			if err := loadNDJSON(ctx, b, cfg.LoadNDJSONDir, ndjson.Options{Allocator: allocator, Logger: logger}); err != nil {
				return nil, errors.Join(err, b.Close())
			}
		}
		return b, nil
	}
}

// NewBackendFromMap decodes options with DecodeConfig and calls NewBackend.
func NewBackendFromMap(ctx context.Context, options map[string]any) (backend.Backend, error) {
	cfg, err := DecodeConfig(options)
	if err != nil {
		return nil, err
	}
	return NewBackend(ctx, cfg)
}

func loadNDJSON(ctx context.Context, b *duckdb.Backend, dir string, opts ndjson.Options) error {
	tables, err := ndjson.ReadDir(dir, opts)
	if err != nil {
		return err
	}
	defer ndjson.ReleaseTables(tables)

	return b.InsertTables(ctx, tables)
}
