package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version.
// It is set at build time with -ldflags "-X github.com/xkilldash9x/hmi-harness/cmd.Version=1.0.0".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hmi-harness version %s\n", Version)
		},
	}
}
