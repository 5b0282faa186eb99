package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"warden/pkg/protocol"
)

// defaultSocketPath returns the engine socket path from env or default.
func defaultSocketPath() string {
	if v := os.Getenv("WARDEN_SOCKET"); v != "" {
		return v
	}
	base := os.Getenv("WARDEN_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".warden")
	}
	return filepath.Join(base, "warden.sock")
}

// query sends one command to the engine and reads back one response.
func query(socketPath string, cmd protocol.Command) (protocol.Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return protocol.Response{}, err
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return protocol.Response{}, fmt.Errorf("engine closed the connection")
	}
	var resp protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// fetchState pulls the current emotional state. nil means the engine is
// offline.
func fetchState(socketPath string) *protocol.EmotionalState {
	resp, err := query(socketPath, protocol.Command{Op: protocol.OpStateGet})
	if err != nil || !resp.OK {
		return nil
	}
	return resp.State
}

// fetchStats pulls the ledger counters.
func fetchStats(socketPath string) *protocol.Stats {
	resp, err := query(socketPath, protocol.Command{Op: protocol.OpStatsGet})
	if err != nil || !resp.OK {
		return nil
	}
	return resp.Stats
}

// fetchActions pulls recent ledger rows.
func fetchActions(socketPath string, limit int) []protocol.AgencyAction {
	resp, err := query(socketPath, protocol.Command{Op: protocol.OpActionHistory, Limit: limit})
	if err != nil || !resp.OK {
		return nil
	}
	return resp.Actions
}

// subscribeEvents opens a subscription and forwards events into a channel
// until the connection drops. The channel closes on disconnect so the model
// can re-subscribe.
func subscribeEvents(socketPath string) (<-chan protocol.Event, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(conn).Encode(protocol.Command{Op: protocol.OpSubscribe}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		_ = conn.Close()
		return nil, fmt.Errorf("no subscribe ack")
	}

	ch := make(chan protocol.Event, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		for scanner.Scan() {
			var ev protocol.Event
			if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
				continue
			}
			ch <- ev
		}
	}()
	return ch, nil
}
