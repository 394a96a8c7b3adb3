// Command admin inspects the HUD's persisted state (catalogs, per-observer properties, borrow
// backups and snapshots) and a running server's metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Inspect voxelhud catalogs, property stores and servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCatalogsCmd(), newPropsCmd(), newBackupCmd(), newSnapshotCmd(), newMetricsCmd())
	return root
}
