package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newWheelCmd creates the "warden wheel" subcommand group.
func newWheelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wheel",
		Short: "Batch autonomous actions under one take-the-wheel grant",
	}
	cmd.AddCommand(newWheelRunCmd(), newWheelConfirmCmd())
	return cmd
}

func newWheelRunCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a wheel request (JSON from --file or stdin)",
		Long:  "Reads a WheelRequest as JSON and submits it. Example payload:\n\n" + `  {"trigger_type": "explicit", "proposals": [{"action_type": "file_write", "resource": "plan.md", "parameters": {"content": "..."}}]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				reader = f
			}
			var req protocol.WheelRequest
			if err := json.NewDecoder(reader).Decode(&req); err != nil {
				return fmt.Errorf("decode wheel request: %w", err)
			}

			resp, err := roundTrip(protocol.Command{Op: protocol.OpWheel, Wheel: &req})
			if err != nil {
				return err
			}
			printWheelResult(cmd, resp.Wheel)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the request from a file instead of stdin")
	return cmd
}

func newWheelConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <batch-id>",
		Short: "Release a held batch for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpWheelConfirm, BatchID: args[0]})
			if err != nil {
				return err
			}
			printWheelResult(cmd, resp.Wheel)
			return nil
		},
	}
}

func printWheelResult(cmd *cobra.Command, w *protocol.WheelResult) {
	out := cmd.OutOrStdout()
	if !w.Confirmed {
		fmt.Fprintf(out, "batch %s held for scope confirmation\n", w.BatchID)
		fmt.Fprintf(out, "confirm with: warden wheel confirm %s\n", w.BatchID)
		return
	}
	fmt.Fprintf(out, "batch %s: %d completed\n", w.BatchID, w.CompletedCount)
	for _, a := range w.Completed {
		fmt.Fprintf(out, "  %s %s — %s\n", a.Type, a.Resource, a.Result)
	}
	if w.StoppedAt != "" {
		fmt.Fprintf(out, "stopped at action %s\n", w.StoppedAt)
	}
}
