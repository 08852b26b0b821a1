// Package executor runs allowlisted external raster tools under an admission
// ceiling, with argument sanitization, kill-on-timeout, and an optional
// privilege drop to a sandbox identity.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// shellMeta are the characters stripped from every argument. No shell is ever
// invoked, so these have no legitimate use in tool arguments.
const shellMeta = "&|;$><`\"'\\\n\r"

// Invocation describes a single external tool run.
type Invocation struct {
	Command string
	Args    []string
	// Timeout bounds the process lifetime; zero means the executor default.
	Timeout time.Duration
	// WorkDir is the job's temp root. Path-like arguments must resolve under
	// it. It is also the working directory of the spawned process.
	WorkDir string
}

// Result holds the outcome of a successful invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Executor enforces the tool allowlist and the system-wide concurrency
// ceiling. Slot waiters are served FIFO.
type Executor struct {
	allowed        map[string]struct{}
	sem            *semaphore.Weighted
	maxConcurrent  int
	defaultTimeout time.Duration
	creds          *sandboxCreds
	logger         *observability.Logger

	running atomic.Int64
}

// New creates an Executor from configuration. An unresolvable sandbox user is
// logged and ignored; the executor then runs tools unsandboxed.
func New(cfg config.ExecutorConfig, logger *observability.Logger) *Executor {
	allowed := make(map[string]struct{}, len(cfg.AllowedCommands))
	for _, c := range cfg.AllowedCommands {
		allowed[c] = struct{}{}
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	defaultTimeout := cfg.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}

	var creds *sandboxCreds
	if cfg.SandboxUser != "" {
		var err error
		creds, err = resolveSandboxUser(cfg.SandboxUser)
		if err != nil {
			logger.Warn().Err(err).Str("user", cfg.SandboxUser).
				Msg("Sandbox user not resolvable, running tools unsandboxed")
		}
	}

	return &Executor{
		allowed:        allowed,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent:  maxConcurrent,
		defaultTimeout: defaultTimeout,
		creds:          creds,
		logger:         logger,
	}
}

// MaxConcurrent returns the admission ceiling.
func (e *Executor) MaxConcurrent() int { return e.maxConcurrent }

// Running returns the number of tool processes currently executing.
func (e *Executor) Running() int64 { return e.running.Load() }

// Available reports whether the command exists on PATH and is allowlisted.
func (e *Executor) Available(command string) bool {
	if _, ok := e.allowed[command]; !ok {
		return false
	}
	_, err := exec.LookPath(command)
	return err == nil
}

// Execute runs a single allowlisted tool invocation. Policy violations
// (disallowed command, unsafe argument, path escape) fail before any slot is
// acquired or process spawned. On timeout the process is killed, the slot is
// released, and a *TimeoutError is returned.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	if _, ok := e.allowed[inv.Command]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrCommandNotAllowed, inv.Command)
	}

	args, err := e.sanitizeArgs(inv)
	if err != nil {
		return nil, err
	}

	// FIFO admission: waiters are served in arrival order.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire process slot: %w", err)
	}
	defer e.sem.Release(1)

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, inv.Command, args...)
	cmd.Dir = inv.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Give the kill signal a short grace window before Wait gives up on
	// copying output.
	cmd.WaitDelay = 2 * time.Second

	applySandbox(cmd, e.creds)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, inv.Command, err)
	}

	e.running.Add(1)
	waitErr := cmd.Wait()
	e.running.Add(-1)
	duration := time.Since(start)

	log := e.logger.WithTool(inv.Command)

	if tctx.Err() == context.DeadlineExceeded {
		log.Warn().Dur("timeout", timeout).Dur("duration", duration).
			Msg("Tool killed after timeout")
		return nil, &TimeoutError{Command: inv.Command, Timeout: timeout}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			log.Debug().Int("exit_code", exitErr.ExitCode()).Dur("duration", duration).
				Str("stderr", truncate(stderr.String(), 8<<10)).
				Msg("Tool exited non-zero")
			return nil, &ExitError{
				Command:  inv.Command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("wait for %s: %w", inv.Command, waitErr)
	}

	log.Debug().Dur("duration", duration).
		Int("stdout_bytes", stdout.Len()).Int("stderr_bytes", stderr.Len()).
		Msg("Tool finished")

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
		Duration: duration,
	}, nil
}

// sanitizeArgs strips shell metacharacters from each argument and verifies
// that path-like arguments resolve under the invocation's WorkDir (or the
// current directory when no WorkDir is set).
func (e *Executor) sanitizeArgs(inv Invocation) ([]string, error) {
	root := inv.WorkDir
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: workdir %q", ErrPathNotAllowed, root)
	}

	args := make([]string, 0, len(inv.Args))
	for _, raw := range inv.Args {
		if strings.ContainsRune(raw, 0) {
			return nil, fmt.Errorf("%w: NUL byte in argument", ErrInvalidArgument)
		}

		arg := stripMeta(raw)
		if arg == "" && raw != "" {
			return nil, fmt.Errorf("%w: argument %q is entirely metacharacters", ErrInvalidArgument, raw)
		}

		if isPathLike(arg) {
			abs := arg
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(absRoot, abs)
			}
			abs = filepath.Clean(abs)
			rel, err := filepath.Rel(absRoot, abs)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return nil, fmt.Errorf("%w: %q resolves outside %q", ErrPathNotAllowed, arg, absRoot)
			}
		}

		args = append(args, arg)
	}
	return args, nil
}

func stripMeta(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(shellMeta, r) {
			return -1
		}
		return r
	}, s)
}

// isPathLike reports whether an argument should be subject to the path
// containment check. Flags and bare values are not.
func isPathLike(arg string) bool {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return false
	}
	return strings.ContainsAny(arg, "/\\") || strings.HasPrefix(arg, ".")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
