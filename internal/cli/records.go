package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/civicstore/internal/client"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	var (
		top     int
		filters []string
		orderBy string
		columns []string
	)
	cmd := &cobra.Command{
		Use:   "list <list>",
		Short: "List records of a list",
		Long: `List reads records through the short-lived read cache.

Filters are key=value equality tests and are ANDed together.

Example:
  civicstore list "Public Records Requests" --filter Status=Received --top 20
  civicstore list Permits --order-by "Created desc"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(filters)
			if err != nil {
				return err
			}
			if top < 0 {
				return usageErr("--top must not be negative")
			}
			q := types.Query{Top: top, Filter: filter, OrderBy: orderBy}
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				records, err := c.ListRecords(cmd.Context(), args[0], q)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), records, func(w io.Writer) error {
					return writeRecords(w, records, columns)
				})
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&top, "top", 0, "maximum records to return (0 for all)")
	f.StringArrayVar(&filters, "filter", nil, "equality filter key=value (repeatable)")
	f.StringVar(&orderBy, "order-by", "", `sort field, optionally followed by " desc"`)
	f.StringSliceVar(&columns, "columns", nil, "fields to show in text output")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <list> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				rec, err := c.GetRecord(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), rec, func(w io.Writer) error {
					return writeRecord(w, rec)
				})
			})
		},
	}
}

// writeCmd builds create and update, which differ only in the client call.
func writeCmd(a *app, use, short string, nargs int,
	run func(c *client.Client, cmd *cobra.Command, args []string, fields map[string]any) (types.Record, error),
) *cobra.Command {
	var assignments []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Fields are key=value pairs. Values that parse as JSON keep their type, so
--field Amount=12.5 stores a number and --field Name=Ada a string. When the
record store is unreachable the write is queued and replayed later.`,
		Args: cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(assignments, "field")
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				rec, err := run(c, cmd, args, fields)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), rec, func(w io.Writer) error {
					return writeRecord(w, rec)
				})
			})
		},
	}
	cmd.Flags().StringArrayVarP(&assignments, "field", "f", nil, "field value key=value (repeatable)")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	return writeCmd(a, "create <list>", "Create a record", 1,
		func(c *client.Client, cmd *cobra.Command, args []string, fields map[string]any) (types.Record, error) {
			return c.CreateRecord(cmd.Context(), args[0], fields)
		})
}

func newUpdateCmd(a *app) *cobra.Command {
	return writeCmd(a, "update <list> <id>", "Update fields of a record", 2,
		func(c *client.Client, cmd *cobra.Command, args []string, fields map[string]any) (types.Record, error) {
			if len(fields) == 0 {
				return types.Record{}, usageErr("update needs at least one --field")
			}
			return c.UpdateRecord(cmd.Context(), args[0], args[1], fields)
		})
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				if err := c.DeleteRecord(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s from %s\n", args[1], args[0])
				return nil
			})
		},
	}
}
