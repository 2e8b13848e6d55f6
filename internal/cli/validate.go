package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/studydb"
	"github.com/hugr-lab/studydb/schema"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var expect []string

	cmd := &cobra.Command{
		Use:   "validate <table>",
		Short: "Check which expected columns a table has",
		Long: `Check a table against expected columns and struct members.

Each --expect names a column, optionally followed by a colon and a
comma-separated list of members expected inside it:

  studydb validate condition --expect recordedDate --expect subject:reference`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := parseExpected(expect)
			if err != nil {
				return err
			}

			b, err := rootOpts.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			report, err := studydb.ValidateTable(cmd.Context(), b, args[0], expected)
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return writeReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringArrayVarP(&expect, "expect", "e", nil, "expected column, as name or name:member1,member2")
	return cmd
}

// parseExpected turns --expect values into a schema.Expected descriptor.
func parseExpected(values []string) (schema.Expected, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one --expect is required")
	}
	expected := make(schema.Expected, len(values))
	for _, v := range values {
		column, members, hasMembers := strings.Cut(v, ":")
		if column == "" {
			return nil, fmt.Errorf("invalid --expect %q: empty column name", v)
		}
		var list []string
		if hasMembers {
			for _, m := range strings.Split(members, ",") {
				if m = strings.TrimSpace(m); m != "" {
					list = append(list, m)
				}
			}
		}
		expected[column] = append(expected[column], list...)
	}
	return expected, nil
}

func writeReport(w io.Writer, report schema.Report) error {
	columns := make([]string, 0, len(report))
	for c := range report {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for _, c := range columns {
		switch p := report[c].(type) {
		case schema.Leaf:
			if _, err := fmt.Fprintf(w, "%s\t%s\n", c, mark(bool(p))); err != nil {
				return err
			}
		case schema.Branch:
			members := make([]string, 0, len(p))
			for m := range p {
				members = append(members, m)
			}
			sort.Strings(members)
			for _, m := range members {
				if _, err := fmt.Fprintf(w, "%s.%s\t%s\n", c, m, mark(p[m])); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func mark(present bool) string {
	if present {
		return "present"
	}
	return "missing"
}
