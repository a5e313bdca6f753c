package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// LocalInvoker runs the check command as a subprocess.
type LocalInvoker struct {
	command string
	args    []string
	guard   *CacheGuard
	logger  zerolog.Logger
}

// NewLocalInvoker creates a local invoker for the given base command and
// fixed arguments.
func NewLocalInvoker(logger zerolog.Logger, command string, args []string) *LocalInvoker {
	return &LocalInvoker{
		command: command,
		args:    args,
		guard:   NewCacheGuard(),
		logger:  logger.With().Str("component", "local-invoker").Logger(),
	}
}

// Check implements Invoker.
func (l *LocalInvoker) Check(ctx context.Context, inv Invocation) (*Outcome, error) {
	unlock := l.guard.Lock(inv.CacheKey())
	defer unlock()

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args := BuildArgs(l.args, inv)
	l.logger.Debug().
		Str("config", inv.Config.ID()).
		Str("target", inv.Target).
		Strs("args", args).
		Msg("invoking toolchain")

	cmd := exec.CommandContext(ctx, l.command, args...)
	cmd.Dir = inv.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	outcome := &Outcome{
		RawOutput: stdout.String(),
		Stderr:    stderr.String(),
		StartedAt: started,
		Duration:  duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else if ctx.Err() != nil {
			return nil, fmt.Errorf("toolchain invocation for %s: %w", inv.Config.ID(), ctx.Err())
		} else {
			return nil, fmt.Errorf("failed to run %s: %w", l.command, err)
		}
	}

	outcome.Findings = ParseDiagnostics(outcome.RawOutput)

	l.logger.Debug().
		Str("config", inv.Config.ID()).
		Int("exit_code", outcome.ExitCode).
		Int("findings", len(outcome.Findings)).
		Dur("duration", duration).
		Msg("toolchain completed")
	return outcome, nil
}

// BuildArgs assembles the full argument list for an invocation. The
// toolchain variant is selected with a rustup-style +name prefix placed
// before the subcommand; the target and feature flags follow the fixed
// arguments. Default features are always disabled so the feature set is
// the single source of truth for what gets compiled.
func BuildArgs(fixed []string, inv Invocation) []string {
	args := make([]string, 0, len(fixed)+6)
	if inv.Toolchain != "" {
		args = append(args, "+"+inv.Toolchain)
	}
	args = append(args, fixed...)
	if inv.Target != "" {
		args = append(args, "--target", inv.Target)
	}
	args = append(args, "--no-default-features")
	if len(inv.Features.Tokens) > 0 {
		args = append(args, "--features", inv.Features.Key())
	}
	return args
}
