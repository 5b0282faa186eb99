package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newPerceiveCmd creates the "warden perceive" subcommand.
func newPerceiveCmd() *cobra.Command {
	var context string
	cmd := &cobra.Command{
		Use:   "perceive <input...>",
		Short: "Feed one interaction through the perception pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{
				Op: protocol.OpPerceive,
				Perceive: &protocol.PerceivePayload{
					Input:   strings.Join(args, " "),
					Context: context,
				},
			})
			if err != nil {
				return err
			}
			p := resp.Perceive
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "emotion:   %s (urgency %s, alignment %.2f)\n", p.Emotion, p.Urgency, p.Alignment)
			fmt.Fprintf(out, "trust now: %.3f  valence %.3f  arousal %.3f\n",
				p.State.Trust, p.State.Valence, p.State.Arousal)
			if p.State.CrisisActive {
				fmt.Fprintln(out, "CRISIS MODE ACTIVE")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&context, "context", "", "free-form situational context")
	return cmd
}
