package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved warden state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home       string // ~/.warden or WARDEN_HOME
	SocketPath string // warden.sock or WARDEN_SOCKET
	DBPath     string // warden.db or WARDEN_DB
	Workspace  string // workspace/ or WARDEN_WORKSPACE
}

// ResolvePaths returns all warden paths, respecting env var overrides.
// Environment variables:
//   - WARDEN_HOME: base directory for all warden state (default: ~/.warden)
//   - WARDEN_SOCKET: engine UDS socket (default: $WARDEN_HOME/warden.sock)
//   - WARDEN_DB: engine database (default: $WARDEN_HOME/warden.db)
//   - WARDEN_WORKSPACE: sandbox root for file actions (default: $WARDEN_HOME/workspace)
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:       home,
		SocketPath: resolvePathWithEnv("WARDEN_SOCKET", home, "warden.sock"),
		DBPath:     resolvePathWithEnv("WARDEN_DB", home, "warden.db"),
		Workspace:  resolvePathWithEnv("WARDEN_WORKSPACE", home, "workspace"),
	}, nil
}

// resolveHome returns the warden home directory from WARDEN_HOME or ~/.warden.
func resolveHome() (string, error) {
	if v := os.Getenv("WARDEN_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".warden"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
