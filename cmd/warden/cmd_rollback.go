package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newRollbackCmd creates the "warden rollback" subcommand.
func newRollbackCmd() *cobra.Command {
	var (
		reason string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "rollback <action-id>",
		Short: "Restore an action's resource from its pre-execution checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			resp, err := roundTrip(protocol.Command{
				Op: protocol.OpRollback,
				Rollback: &protocol.RollbackPayload{
					ActionID: args[0],
					Reason:   reason,
					Force:    force,
				},
			})
			if err != nil {
				return err
			}
			r := resp.Rollback
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rollback %s: ok\n", r.RollbackID)
			for _, res := range r.RestoredResources {
				fmt.Fprintf(out, "  restored %s\n", res)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the action is being rolled back (required)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the settled-status check")
	return cmd
}
