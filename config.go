package studydb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-viper/mapstructure/v2"
)

// Database types accepted in Config.DBType.
const (
	DBTypeDuckDB = "duckdb"
	DBTypeAthena = "athena"
)

// Config contains configuration for NewBackend. Field tags name the keys of
// the mapping accepted by NewBackendFromMap.
type Config struct {
	// DBType selects the backend: DBTypeDuckDB or DBTypeAthena.
	// REQUIRED.
	DBType string `mapstructure:"db_type"`

	// SchemaName is the Athena database. For DuckDB it is read as the
	// database file path when DatabasePath is empty; that use is deprecated.
	SchemaName string `mapstructure:"schema_name"`

	// DatabasePath is the DuckDB database file.
	// OPTIONAL: Uses an in-memory database if empty.
	DatabasePath string `mapstructure:"database_path"`

	// LoadNDJSONDir is a directory of FHIR NDJSON exports to load into the
	// DuckDB backend after it opens. It is rejected for Athena.
	// OPTIONAL.
	LoadNDJSONDir string `mapstructure:"load_ndjson_dir"`

	// Region, Workgroup and Profile configure the Athena backend.
	Region    string `mapstructure:"region"`
	Workgroup string `mapstructure:"workgroup"`
	Profile   string `mapstructure:"profile"`

	// PollInterval between Athena query state checks.
	// OPTIONAL: Uses athena.DefaultPollInterval if zero.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator `mapstructure:"-"`

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger `mapstructure:"-"`

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level `mapstructure:"-"`
}

// Standard errors returned by studydb package.
var (
	// ErrInvalidConfig indicates Config validation failed.
	ErrInvalidConfig = errors.New("invalid backend config")
)

// DecodeConfig reads a configuration mapping into a Config. Unknown keys are
// rejected. Durations accept strings such as "500ms".
func DecodeConfig(options map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(options); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// validateConfig checks that required Config fields are valid.
func validateConfig(cfg Config) error {
	switch cfg.DBType {
	case DBTypeDuckDB:
		return nil
	case DBTypeAthena:
		if cfg.LoadNDJSONDir != "" {
			return fmt.Errorf("load_ndjson_dir is not supported with db_type %q: NDJSON can only be loaded into %q",
				DBTypeAthena, DBTypeDuckDB)
		}
		if cfg.SchemaName == "" {
			return fmt.Errorf("schema_name is required for db_type %q", DBTypeAthena)
		}
		return nil
	case "":
		return fmt.Errorf("db_type is required")
	default:
		return fmt.Errorf("unknown db_type %q: expected %q or %q", cfg.DBType, DBTypeDuckDB, DBTypeAthena)
	}
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *cfg.LogLevel}))
	}
	return slog.Default()
}
