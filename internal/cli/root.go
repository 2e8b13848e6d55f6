// Package cli implements the studydb command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/studydb"
	"github.com/hugr-lab/studydb/backend"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	DBType        string
	SchemaName    string
	DatabasePath  string
	LoadNDJSONDir string
	Region        string
	Workgroup     string
	Profile       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// flagKeys maps backend flags to their configuration keys.
var flagKeys = map[string]string{
	"db-type":         "db_type",
	"schema-name":     "schema_name",
	"database-path":   "database_path",
	"load-ndjson-dir": "load_ndjson_dir",
	"region":          "region",
	"workgroup":       "workgroup",
	"profile":         "profile",
}

// NewRootCommand creates the root command for the studydb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "studydb",
		Short: "Run study SQL against Athena or a local DuckDB database",
		Long: `Run study SQL against Amazon Athena or an embedded DuckDB database.

DuckDB databases can be loaded from a directory of FHIR NDJSON exports with
--load-ndjson-dir. Options may also be read from a YAML file with --config;
flags override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "YAML file with backend options")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.DBType, "db-type", studydb.DBTypeDuckDB, "backend: duckdb or athena")
	flags.StringVar(&opts.SchemaName, "schema-name", "", "Athena database")
	flags.StringVar(&opts.DatabasePath, "database-path", "", "DuckDB database file (default in-memory)")
	flags.StringVar(&opts.LoadNDJSONDir, "load-ndjson-dir", "", "directory of FHIR NDJSON to load into DuckDB")
	flags.StringVar(&opts.Region, "region", "", "AWS region")
	flags.StringVar(&opts.Workgroup, "workgroup", "", "Athena workgroup")
	flags.StringVar(&opts.Profile, "profile", "", "AWS shared credentials profile")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// options merges the config file with the flags set on cmd.
func (o *RootOptions) options(cmd *cobra.Command) (map[string]any, error) {
	options := map[string]any{}
	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &options); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", o.ConfigFile, err)
		}
		if options == nil {
			options = map[string]any{}
		}
	}

	values := map[string]string{
		"db-type":         o.DBType,
		"schema-name":     o.SchemaName,
		"database-path":   o.DatabasePath,
		"load-ndjson-dir": o.LoadNDJSONDir,
		"region":          o.Region,
		"workgroup":       o.Workgroup,
		"profile":         o.Profile,
	}
	for flag, key := range flagKeys {
		_, inFile := options[key]
		if cmd.Flags().Changed(flag) || (!inFile && values[flag] != "") {
			options[key] = values[flag]
		}
	}
	return options, nil
}

// openBackend opens the backend described by the flags and config file.
func (o *RootOptions) openBackend(ctx context.Context, cmd *cobra.Command) (backend.Backend, error) {
	options, err := o.options(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := studydb.DecodeConfig(options)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	return studydb.NewBackend(ctx, cfg)
}
