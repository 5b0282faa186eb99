package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"warden/pkg/protocol"
)

// newWatchCmd creates the "warden watch" subcommand: a plain-text event tail.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream engine events to the terminal",
		Long:  "Subscribes to the engine's event feed and prints each event as it\narrives. Delivery is at-most-once; reconnect and pull state to resync.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			conn, err := net.Dial("unix", paths.SocketPath)
			if err != nil {
				return fmt.Errorf("engine not running at %s (start it with: warden serve)", paths.SocketPath)
			}
			defer conn.Close()

			if err := json.NewEncoder(conn).Encode(protocol.Command{Op: protocol.OpSubscribe}); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}

			scanner := bufio.NewScanner(conn)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			if !scanner.Scan() {
				return fmt.Errorf("no subscribe ack")
			}
			var ack protocol.Response
			if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil || !ack.OK {
				return fmt.Errorf("subscribe refused: %s", ack.Err)
			}

			color := isatty.IsTerminal(os.Stdout.Fd())
			out := cmd.OutOrStdout()
			for scanner.Scan() {
				var ev protocol.Event
				if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
					continue
				}
				fmt.Fprintln(out, formatEvent(ev, color))
			}
			return scanner.Err()
		},
	}
}

var eventStyles = map[protocol.EventType]lipgloss.Style{
	protocol.EventStateChanged:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	protocol.EventTierChanged:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	protocol.EventActionCompleted:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	protocol.EventActionFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	protocol.EventRollbackCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	protocol.EventCrisisAlert:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	protocol.EventReunionSurge:      lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
}

func formatEvent(ev protocol.Event, color bool) string {
	label := string(ev.Type)
	if color {
		if style, ok := eventStyles[ev.Type]; ok {
			label = style.Render(label)
		}
	}
	switch {
	case ev.Alert != "":
		return fmt.Sprintf("%s  %s", label, ev.Alert)
	case ev.TierChange != nil:
		return fmt.Sprintf("%s  tier %d -> %d (%s) at trust %.3f",
			label, ev.TierChange.OldTier, ev.TierChange.NewTier, ev.TierChange.Name, ev.TierChange.Trust)
	case ev.Action != nil:
		return fmt.Sprintf("%s  %s %s [%s]", label, ev.Action.Type, ev.Action.Resource, ev.Action.Status)
	case ev.Rollback != nil:
		return fmt.Sprintf("%s  %s", label, ev.Rollback.RollbackID)
	case ev.State != nil:
		return fmt.Sprintf("%s  trust %.3f valence %.3f arousal %.3f",
			label, ev.State.Trust, ev.State.Valence, ev.State.Arousal)
	default:
		return label
	}
}
