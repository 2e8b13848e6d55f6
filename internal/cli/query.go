package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/studydb/backend"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a SQL statement and print its rows",
		Long: `Execute a single SQL statement and print the result.

Text output is tab-separated with a header row. JSON output is an array of
objects keyed by column name. The statement is read from --file when no
argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, file)
			if err != nil {
				return err
			}

			b, err := rootOpts.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			cur := b.Cursor()
			if err := cur.Execute(cmd.Context(), query); err != nil {
				return err
			}
			rows, err := cur.FetchAll()
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSONRows(cmd.OutOrStdout(), cur.Description(), rows)
			}
			return writeTextRows(cmd.OutOrStdout(), cur.Description(), rows)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the statement from a file")
	return cmd
}

func readQuery(args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("pass the statement as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading query: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("no statement given")
	}
}

func writeTextRows(w io.Writer, columns []backend.Column, rows [][]any) error {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	if _, err := fmt.Fprintln(w, strings.Join(names, "\t")); err != nil {
		return err
	}

	fields := make([]string, len(columns))
	for _, row := range rows {
		for i, v := range row {
			fields[i] = formatValue(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields[:len(row)], "\t")); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONRows(w io.Writer, columns []backend.Column, rows [][]any) error {
	out := make([]map[string]any, len(rows))
	for r, row := range rows {
		obj := make(map[string]any, len(columns))
		for i, c := range columns {
			if i < len(row) {
				obj[c.Name] = row[i]
			}
		}
		out[r] = obj
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	case []any, map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
