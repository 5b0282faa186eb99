package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newTrustCmd creates the "warden trust" subcommand.
func newTrustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust",
		Short: "Print the current trust level and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpTrustGet})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trust %.3f — tier %d (%s)\n",
				*resp.Trust, resp.Tier.Tier, resp.Tier.Name)
			return nil
		},
	}
}

// newTiersCmd creates the "warden tiers" subcommand.
func newTiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the trust tier table",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpTierTable})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range resp.Tiers {
				fmt.Fprintf(out, "%d %-12s [%.2f, %.2f)  %s\n",
					t.Tier, t.Name, t.TrustMin, t.TrustMax, joinCapabilities(t.Capabilities))
			}
			return nil
		},
	}
}

func joinCapabilities(caps []string) string {
	if len(caps) == 0 {
		return "-"
	}
	s := caps[0]
	for _, c := range caps[1:] {
		s += ", " + c
	}
	return s
}
