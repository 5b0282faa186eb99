package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"warden/pkg/protocol"
)

// tickMsg triggers a periodic data refresh.
type tickMsg time.Time

// stateMsg carries the fetched emotional state. nil means offline.
type stateMsg *protocol.EmotionalState

// statsMsg carries the fetched ledger counters.
type statsMsg *protocol.Stats

// actionsMsg carries recent ledger rows.
type actionsMsg []protocol.AgencyAction

// eventMsg carries one pushed engine event.
type eventMsg protocol.Event

// subClosedMsg signals the event subscription dropped.
type subClosedMsg struct{}

// subOpenedMsg carries a live event channel.
type subOpenedMsg <-chan protocol.Event

const maxFeedLines = 200

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(socketPath string) tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return stateMsg(fetchState(socketPath)) },
		func() tea.Msg { return statsMsg(fetchStats(socketPath)) },
		func() tea.Msg { return actionsMsg(fetchActions(socketPath, 15)) },
	)
}

func subscribeCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		ch, err := subscribeEvents(socketPath)
		if err != nil {
			return subClosedMsg{}
		}
		return subOpenedMsg(ch)
	}
}

func waitForEventCmd(ch <-chan protocol.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return subClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Model is the Bubble Tea model for the warden dashboard.
type Model struct {
	socketPath string
	theme      Theme

	state   *protocol.EmotionalState
	stats   *protocol.Stats
	actions []protocol.AgencyAction

	events <-chan protocol.Event
	feed   []string
	vp     viewport.Model

	width  int
	height int
	ready  bool
}

// newModel creates a new Model wired to the default engine socket.
func newModel() Model {
	return Model{
		socketPath: defaultSocketPath(),
		theme:      DefaultTheme(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.socketPath), subscribeCmd(m.socketPath), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		feedHeight := m.height - 12
		if feedHeight < 3 {
			feedHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(m.width, feedHeight)
			m.ready = true
		} else {
			m.vp.Width = m.width
			m.vp.Height = feedHeight
		}
		m.vp.SetContent(strings.Join(m.feed, "\n"))
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.socketPath), tickCmd())

	case stateMsg:
		m.state = msg
		return m, nil

	case statsMsg:
		m.stats = msg
		return m, nil

	case actionsMsg:
		m.actions = msg
		return m, nil

	case subOpenedMsg:
		m.events = msg
		return m, waitForEventCmd(m.events)

	case subClosedMsg:
		m.events = nil
		// Re-subscribe on the next tick cadence.
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return subscribeCmd(m.socketPath)()
		})

	case eventMsg:
		m.feed = append(m.feed, formatFeedLine(protocol.Event(msg), m.theme))
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		if m.ready {
			m.vp.SetContent(strings.Join(m.feed, "\n"))
			m.vp.GotoBottom()
		}
		return m, waitForEventCmd(m.events)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(renderHeader(m.state, m.stats, m.theme))
	b.WriteString("\n")
	b.WriteString(renderActions(m.actions, m.theme))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Muted).Render("events"))
		b.WriteString("\n")
		b.WriteString(m.vp.View())
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Muted).Render("q quit"))
	return b.String()
}

// renderHeader draws the state vector summary line and trust gauge.
func renderHeader(state *protocol.EmotionalState, stats *protocol.Stats, theme Theme) string {
	title := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Render("warden")
	if state == nil {
		offline := lipgloss.NewStyle().Foreground(theme.Error).Render("engine offline")
		return fmt.Sprintf("%s  %s", title, offline)
	}

	var tierName string
	if stats != nil {
		tierName = fmt.Sprintf("tier %d %s", stats.Tier, stats.TierName)
	}
	mode := string(state.Mode)
	modeStyle := lipgloss.NewStyle().Foreground(theme.Success)
	if state.CrisisActive {
		modeStyle = lipgloss.NewStyle().Foreground(theme.Error).Bold(true)
	}

	lines := []string{
		fmt.Sprintf("%s  %s  %s  %s", title, state.ActorID, modeStyle.Render(mode), tierName),
		fmt.Sprintf("trust %s %.3f   warmth %.2f  arousal %.2f  valence %.2f",
			renderGauge(state.Trust, 20, theme), state.Trust,
			state.Warmth, state.Arousal, state.Valence),
	}
	if stats != nil {
		lines = append(lines, fmt.Sprintf("actions: %d active, %.0f%% success, %d rollbacks",
			stats.ActiveCount, stats.SuccessRate*100, stats.RollbackCount))
	}
	return strings.Join(lines, "\n")
}

// renderGauge draws a fixed-width bar for a [0,1] scalar.
func renderGauge(v float64, width int, theme Theme) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(theme.Secondary).Render(bar)
}

// renderActions draws the recent ledger rows.
func renderActions(actions []protocol.AgencyAction, theme Theme) string {
	if len(actions) == 0 {
		return lipgloss.NewStyle().Foreground(theme.Muted).Render("no actions")
	}
	statusColor := map[protocol.ActionStatus]lipgloss.Color{
		protocol.StatusCompleted:  theme.Success,
		protocol.StatusFailed:     theme.Error,
		protocol.StatusRolledBack: theme.Warning,
		protocol.StatusPending:    theme.Secondary,
		protocol.StatusInProgress: theme.Primary,
	}
	var rows []string
	for _, a := range actions {
		color, ok := statusColor[a.Status]
		if !ok {
			color = theme.Muted
		}
		status := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%-12s", a.Status))
		rows = append(rows, fmt.Sprintf("%s %-18s %s", status, a.Type, a.Resource))
	}
	return strings.Join(rows, "\n")
}

// formatFeedLine renders one pushed event for the scrolling feed.
func formatFeedLine(ev protocol.Event, theme Theme) string {
	ts := ev.CreatedAt.Format("15:04:05")
	switch {
	case ev.Alert != "":
		return fmt.Sprintf("%s %s", ts, lipgloss.NewStyle().Foreground(theme.Error).Bold(true).Render(ev.Alert))
	case ev.TierChange != nil:
		return fmt.Sprintf("%s tier %d -> %d (%s)", ts, ev.TierChange.OldTier, ev.TierChange.NewTier, ev.TierChange.Name)
	case ev.Action != nil:
		return fmt.Sprintf("%s %s %s %s [%s]", ts, ev.Type, ev.Action.Type, ev.Action.Resource, ev.Action.Status)
	case ev.Rollback != nil:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Rollback.RollbackID)
	case ev.State != nil:
		return fmt.Sprintf("%s %s trust %.3f", ts, ev.Type, ev.State.Trust)
	default:
		return fmt.Sprintf("%s %s", ts, ev.Type)
	}
}
