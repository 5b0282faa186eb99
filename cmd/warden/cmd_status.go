package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newStatusCmd creates the "warden status" subcommand.
func newStatusCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		Long:  "Displays the current trust level, tier, action counters,\nand success rate for one actor scope.",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpStatsGet, ActorID: actorID})
			if err != nil {
				return err
			}
			s := resp.Stats
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "actor:        %s\n", s.ActorID)
			fmt.Fprintf(out, "trust:        %.3f (tier %d, %s)\n", s.Trust, s.Tier, s.TierName)
			fmt.Fprintf(out, "active:       %d\n", s.ActiveCount)
			fmt.Fprintf(out, "success rate: %.0f%%\n", s.SuccessRate*100)
			fmt.Fprintf(out, "rollbacks:    %d\n", s.RollbackCount)
			fmt.Fprintf(out, "events:       %d\n", s.EventCount)
			if len(s.ByStatus) > 0 {
				fmt.Fprintln(out, "actions:")
				for _, status := range []protocol.ActionStatus{
					protocol.StatusPending, protocol.StatusApproved, protocol.StatusInProgress,
					protocol.StatusCompleted, protocol.StatusFailed, protocol.StatusRejected,
					protocol.StatusRolledBack,
				} {
					if n := s.ByStatus[status]; n > 0 {
						fmt.Fprintf(out, "  %-12s %d\n", status, n)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&actorID, "actor", "a", "", "actor scope (default: engine's primary actor)")
	return cmd
}
