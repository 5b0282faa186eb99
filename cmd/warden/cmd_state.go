package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newStateCmd creates the "warden state" subcommand group.
func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the emotional state",
	}
	cmd.AddCommand(newStateGetCmd(), newStateResetCmd(), newStateElasticCmd(), newStateReunionCmd())
	return cmd
}

func newStateGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current state vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpStateGet})
			if err != nil {
				return err
			}
			return printState(cmd, resp.State, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newStateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the state vector to its seed values",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpStateReset})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "state reset")
			return printState(cmd, resp.State, false)
		},
	}
}

func newStateElasticCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "elastic <on|off>",
		Short:     "Toggle elastic mode (amplified emotional response)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on := args[0] == "on"
			resp, err := roundTrip(protocol.Command{Op: protocol.OpElasticSet, Elastic: &on})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "elastic mode: %v\n", resp.State.ElasticMode)
			return nil
		},
	}
}

func newStateReunionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reunion",
		Short: "Trigger a reunion surge after an absence",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpReunion})
			if err != nil {
				return err
			}
			return printState(cmd, resp.State, false)
		},
	}
}

func printState(cmd *cobra.Command, s *protocol.EmotionalState, asJSON bool) error {
	out := cmd.OutOrStdout()
	if s == nil {
		fmt.Fprintln(out, "no state")
		return nil
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(out, "actor:   %s  (posture %s, mode %s)\n", s.ActorID, s.Posture, s.Mode)
	fmt.Fprintf(out, "trust    %.3f   warmth  %.3f\n", s.Trust, s.Warmth)
	fmt.Fprintf(out, "arousal  %.3f   valence %.3f\n", s.Arousal, s.Valence)
	fmt.Fprintf(out, "empathy %.2f intuition %.2f creativity %.2f wisdom %.2f humor %.2f\n",
		s.Empathy, s.Intuition, s.Creativity, s.Wisdom, s.Humor)
	fmt.Fprintf(out, "interactions: %d", s.InteractionCount)
	if s.ElasticMode {
		fmt.Fprint(out, "  [elastic]")
	}
	if s.CrisisActive {
		fmt.Fprint(out, "  [crisis]")
	}
	if s.DoorSlamActive {
		fmt.Fprint(out, "  [door slam]")
	}
	fmt.Fprintln(out)
	return nil
}
