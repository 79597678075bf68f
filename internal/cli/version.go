package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/civicstore"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the civicstore version",
		Args:        cobra.NoArgs,
		Annotations: noConfig(),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "civicstore v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
