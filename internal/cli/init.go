package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create configuration and local storage",
		Long: "Write a default config.yaml if none exists, then create the offline\n" +
			"record store and the local queue in the data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := a.finish(s); err != nil {
				return err
			}
			dataDir, _ := a.dataDir()
			fmt.Fprintf(cmd.OutOrStdout(), "civicstore initialized in %s\n", dataDir)
			return nil
		},
	}
}

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Ensure the intake list, registered lists and document root exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			names := append([]string{a.cfg.Intake.List}, listNames(a)...)
			type row struct {
				List     string `json:"list"`
				RemoteID string `json:"remote_id"`
			}
			rows := make([]row, 0, len(names))
			for _, n := range names {
				d, _ := s.client.Descriptor(n)
				rows = append(rows, row{List: n, RemoteID: d.RemoteID})
			}
			err = a.emit(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\n", r.RemoteID, r.List)
				}
				return nil
			})
			return errors.Join(err, a.finish(s))
		},
	}
}

func listNames(a *app) []string {
	out := make([]string, 0, len(a.cfg.Lists))
	for _, l := range a.cfg.Lists {
		out = append(out, l.DisplayName)
	}
	return out
}
