package main

import (
	"fmt"

	"warden/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root warden command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "warden",
		Short:         "Trust-gated autonomous action engine",
		Long:          "warden gates an agent's autonomous actions behind an earned trust level.\nIt tracks emotional state, vets every action, and can roll any of them back.",
		Version:       fmt.Sprintf("warden %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newStateCmd(),
		newPerceiveCmd(),
		newTrustCmd(),
		newTiersCmd(),
		newActionsCmd(),
		newRollbackCmd(),
		newWheelCmd(),
		newWatchCmd(),
		newCapabilitiesCmd(),
		newDashCmd(),
	)

	return cmd
}
