package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newCapabilitiesCmd creates the "warden capabilities" subcommand.
func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the capability catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpCapabilitiesGet})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range resp.Capabilities {
				fmt.Fprintf(out, "%s (min trust %.2f)\n", c.Name, c.MinTrust)
				fmt.Fprintf(out, "  %s\n", c.Description)
				for _, t := range c.ActionTypes {
					fmt.Fprintf(out, "    %s\n", t)
				}
				if c.RollbackAvailable {
					fmt.Fprintln(out, "  rollback available")
				}
			}
			return nil
		},
	}
}
