package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/TheBushidoCollective/han-sub006/internal/logging"
)

// termGrace is how long a cancelled command gets between SIGTERM and
// SIGKILL.
const termGrace = 5 * time.Second

// maxCapturedOutput bounds how much stdout and stderr a result carries.
const maxCapturedOutput = 256 << 10

// ExecResult is the raw outcome of running a hook command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Runner executes hook commands. The queue owns scheduling; the runner
// owns the process.
type Runner interface {
	Run(ctx context.Context, spec Spec) ExecResult
}

// ShellRunner runs hook commands through the shell so plugin commands can
// use pipes and expansions.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, spec Spec) ExecResult {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", spec.Command)
	cmd.Env = append(cmd.Environ(),
		"HAN_SESSION_ID="+spec.SessionID,
		"HAN_HOOK_FILES="+strings.Join(spec.Files, "\n"),
	)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: truncateOutput(stdout.String()),
		Stderr: truncateOutput(stderr.String()),
	}
	if err == nil {
		return result
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Err = fmt.Errorf("hook command exited %d", result.ExitCode)
	default:
		result.ExitCode = -1
		result.Err = err
	}
	return result
}

func truncateOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput]
}

// RunLocal executes a hook synchronously and builds its terminal result.
// It is the degraded path clients take when no coordinator is reachable,
// and the same execution core the queue workers use.
func RunLocal(ctx context.Context, runner Runner, spec Spec, logger *slog.Logger) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	if runner == nil {
		runner = ShellRunner{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	started := time.Now()
	outcome := runner.Run(ctx, spec)
	result := resultFromExec(spec, outcome, started)
	result.RunID = uuid.NewString()

	logger.Info("ran hook locally",
		logging.String(logging.FieldHookID, result.HookID),
		logging.String(logging.FieldSessionID, spec.SessionID),
		logging.Bool("success", result.Success),
		logging.Int("exit_code", result.ExitCode))
	return result, nil
}

func resultFromExec(spec Spec, outcome ExecResult, started time.Time) Result {
	finished := time.Now()
	result := Result{
		HookID:     spec.ID(),
		SessionID:  spec.SessionID,
		Plugin:     spec.Plugin,
		Hook:       spec.Hook,
		ExitCode:   outcome.ExitCode,
		Stdout:     outcome.Stdout,
		Stderr:     outcome.Stderr,
		Duration:   finished.Sub(started),
		FinishedAt: finished,
	}
	if outcome.Err == nil {
		result.Status = StatusCompleted
		result.Success = true
	} else {
		result.Status = StatusFailed
		result.Error = outcome.Err.Error()
	}
	return result
}
