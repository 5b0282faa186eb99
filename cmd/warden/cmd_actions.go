package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newActionsCmd creates the "warden actions" subcommand group.
func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Request, execute, and inspect agency actions",
	}
	cmd.AddCommand(
		newActionsRequestCmd(),
		newActionsExecCmd(),
		newActionsGetCmd(),
		newActionsListCmd(),
		newActionsActiveCmd(),
		newActionsRejectCmd(),
	)
	return cmd
}

func newActionsRequestCmd() *cobra.Command {
	var (
		paramsJSON   string
		contextNote  string
		autoRollback bool
	)
	cmd := &cobra.Command{
		Use:   "request <type> <resource>",
		Short: "Vet a new action against the trust gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &protocol.ActionRequest{
				Type:         protocol.ActionType(args[0]),
				Resource:     args[1],
				Source:       protocol.SourceUserRequest,
				Context:      contextNote,
				AutoRollback: autoRollback,
			}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &req.Parameters); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}
			resp, err := roundTrip(protocol.Command{Op: protocol.OpActionRequest, Request: req})
			if err != nil {
				if resp.Action != nil {
					printAction(cmd, *resp.Action)
				}
				return err
			}
			printAction(cmd, *resp.Action)
			if resp.Action.Metadata.RequiresConfirmation {
				fmt.Fprintf(cmd.OutOrStdout(), "requires confirmation: warden actions exec %s --approve\n", resp.Action.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&paramsJSON, "params", "p", "", "action parameters as a JSON object")
	cmd.Flags().StringVar(&contextNote, "context", "", "free-form context recorded with the action")
	cmd.Flags().BoolVar(&autoRollback, "auto-rollback", false, "roll back automatically if execution fails")
	return cmd
}

func newActionsExecCmd() *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:   "exec <action-id>",
		Short: "Execute a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{
				Op:       protocol.OpActionExec,
				ActionID: args[0],
				Approve:  approve,
			})
			if err != nil {
				if resp.Action != nil {
					printAction(cmd, *resp.Action)
				}
				return err
			}
			printAction(cmd, *resp.Action)
			return nil
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "confirm a gated action")
	return cmd
}

func newActionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <action-id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpActionGet, ActionID: args[0]})
			if err != nil {
				return err
			}
			printAction(cmd, *resp.Action)
			return nil
		},
	}
}

func newActionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent actions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpActionHistory, Limit: limit})
			if err != nil {
				return err
			}
			printActionTable(cmd, resp.Actions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}

func newActionsActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List actions that have not settled",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{Op: protocol.OpActionActive})
			if err != nil {
				return err
			}
			printActionTable(cmd, resp.Actions)
			return nil
		},
	}
}

func newActionsRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Decline a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(protocol.Command{
				Op:       protocol.OpActionReject,
				ActionID: args[0],
				Reason:   reason,
			})
			if err != nil {
				return err
			}
			printAction(cmd, *resp.Action)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "declined", "why the action was declined")
	return cmd
}

func printAction(cmd *cobra.Command, a protocol.AgencyAction) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s %s  [%s]\n", a.ID, a.Type, a.Resource, a.Status)
	if a.Result != "" {
		fmt.Fprintf(out, "  result: %s\n", a.Result)
	}
	if a.Error != "" {
		fmt.Fprintf(out, "  error:  %s\n", a.Error)
	}
	if a.RollbackID != "" {
		fmt.Fprintf(out, "  rolled back by %s\n", a.RollbackID)
	}
}

func printActionTable(cmd *cobra.Command, actions []protocol.AgencyAction) {
	out := cmd.OutOrStdout()
	if len(actions) == 0 {
		fmt.Fprintln(out, "no actions")
		return
	}
	for _, a := range actions {
		fmt.Fprintf(out, "%s  %-12s %-18s %s\n", a.ID, a.Status, a.Type, a.Resource)
	}
}
