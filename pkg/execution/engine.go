// Package execution runs approved actions. It is a registry of per-type
// handlers wrapped with checkpointing and a hard per-action time limit;
// the ledger drives it through the Run method.
package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"warden/pkg/checkpoint"
	"warden/pkg/ledger"
	"warden/pkg/protocol"
)

// DefaultTimeout bounds a single action run.
const DefaultTimeout = 30 * time.Second

// HandlerFunc executes one action and returns a human-readable result line.
type HandlerFunc func(ctx context.Context, action protocol.AgencyAction) (string, error)

// Snapshotter captures and restores resource content. Satisfied by
// checkpoint.FileSnapshotter.
type Snapshotter interface {
	Read(resource string) (content []byte, existed bool, err error)
	Restore(resource string, content []byte, existed bool) error
}

// Engine dispatches actions to registered handlers.
type Engine struct {
	checkpoints *checkpoint.Store
	snap        Snapshotter
	workspace   string
	timeout     time.Duration
	handlers    map[protocol.ActionType]HandlerFunc
}

// Config for NewEngine. Zero values fall back to defaults.
type Config struct {
	// Workspace is the sandbox root all file resources resolve under.
	Workspace string
	// Timeout bounds one action run.
	Timeout time.Duration
	// Snapshotter overrides the file snapshotter. Test hook.
	Snapshotter Snapshotter
}

// NewEngine builds an Engine with the built-in file handlers registered.
func NewEngine(checkpoints *checkpoint.Store, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	snap := cfg.Snapshotter
	if snap == nil {
		snap = checkpoint.FileSnapshotter{Root: cfg.Workspace}
	}
	e := &Engine{
		checkpoints: checkpoints,
		snap:        snap,
		workspace:   cfg.Workspace,
		timeout:     cfg.Timeout,
		handlers:    make(map[protocol.ActionType]HandlerFunc),
	}
	e.registerBuiltins()
	return e
}

// Register installs (or replaces) the handler for one action type.
func (e *Engine) Register(t protocol.ActionType, h HandlerFunc) {
	e.handlers[t] = h
}

// checkpointed lists the action types whose resource is snapshotted before
// and after the run so a rollback can restore it.
var checkpointed = map[protocol.ActionType]bool{
	protocol.ActionFileWrite:      true,
	protocol.ActionFileDelete:     true,
	protocol.ActionFileMove:       true,
	protocol.ActionHeritageModify: true,
	protocol.ActionBackupRestore:  true,
}

// Run implements ledger.Runner.
func (e *Engine) Run(ctx context.Context, action protocol.AgencyAction) (ledger.Outcome, error) {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return ledger.Outcome{}, &protocol.ExecutionError{
			ActionID: action.ID,
			Cause:    fmt.Errorf("no handler registered for %s", action.Type),
		}
	}

	var out ledger.Outcome
	if checkpointed[action.Type] {
		ref, err := e.capture(action)
		if err != nil {
			return out, &protocol.ExecutionError{ActionID: action.ID, Cause: err}
		}
		out.CheckpointBefore = ref
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := handler(ctx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, &protocol.TimeoutError{ActionID: action.ID, Limit: e.timeout.String()}
		}
		return out, &protocol.ExecutionError{ActionID: action.ID, Cause: err}
	}
	out.Result = result

	if checkpointed[action.Type] {
		ref, err := e.capture(action)
		if err != nil {
			return out, &protocol.ExecutionError{ActionID: action.ID, Cause: err}
		}
		out.CheckpointAfter = ref
	}
	return out, nil
}

func (e *Engine) capture(action protocol.AgencyAction) (string, error) {
	content, existed, err := e.snap.Read(action.Resource)
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", action.Resource, err)
	}
	return e.checkpoints.Capture(action.ID, action.Resource, content, existed)
}

// resolve maps a resource onto the workspace and rejects escapes.
func (e *Engine) resolve(resource string) (string, error) {
	clean := filepath.Clean("/" + resource)
	if clean == "/" {
		return "", fmt.Errorf("resource %q resolves to the workspace root", resource)
	}
	return filepath.Join(e.workspace, clean), nil
}

func (e *Engine) registerBuiltins() {
	e.handlers[protocol.ActionFileRead] = e.runFileRead
	e.handlers[protocol.ActionFileWrite] = e.runFileWrite
	e.handlers[protocol.ActionFileDelete] = e.runFileDelete
	e.handlers[protocol.ActionFileMove] = e.runFileMove
	e.handlers[protocol.ActionDirectoryCreate] = e.runDirectoryCreate
	e.handlers[protocol.ActionBackupCreate] = e.runBackupCreate
	e.handlers[protocol.ActionCodeExecute] = e.runCommand
	e.handlers[protocol.ActionSystemCommand] = e.runCommand
}

func (e *Engine) runFileRead(_ context.Context, action protocol.AgencyAction) (string, error) {
	path, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (e *Engine) runFileWrite(_ context.Context, action protocol.AgencyAction) (string, error) {
	path, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	content, _ := action.Parameters["content"].(string)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), action.Resource), nil
}

func (e *Engine) runFileDelete(_ context.Context, action protocol.AgencyAction) (string, error) {
	path, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted %s", action.Resource), nil
}

func (e *Engine) runFileMove(_ context.Context, action protocol.AgencyAction) (string, error) {
	src, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	dest, _ := action.Parameters["destination"].(string)
	if dest == "" {
		return "", errors.New("file_move requires a destination parameter")
	}
	destPath, err := e.resolve(dest)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(src, destPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("moved %s to %s", action.Resource, dest), nil
}

func (e *Engine) runDirectoryCreate(_ context.Context, action protocol.AgencyAction) (string, error) {
	path, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("created directory %s", action.Resource), nil
}

func (e *Engine) runBackupCreate(_ context.Context, action protocol.AgencyAction) (string, error) {
	path, err := e.resolve(action.Resource)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ref, err := e.checkpoints.Capture(action.ID, action.Resource, content, true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("backup %s of %s", ref, action.Resource), nil
}

// runCommand executes code_execute and system_command actions. The resource
// is the program; the "args" parameter supplies arguments. The process runs
// in the workspace and is killed when the action deadline fires.
func (e *Engine) runCommand(ctx context.Context, action protocol.AgencyAction) (string, error) {
	var args []string
	if raw, ok := action.Parameters["args"].([]any); ok {
		for _, a := range raw {
			args = append(args, fmt.Sprint(a))
		}
	}
	cmd := exec.CommandContext(ctx, action.Resource, args...)
	cmd.Dir = e.workspace
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
