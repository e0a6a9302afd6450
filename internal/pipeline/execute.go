package pipeline

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// Execute implements the Execute stage: spawn the prepared command with
// inherited stdio, forward interrupts to the child, and translate its exit
// into vx's own process exit code.
//
// Grounded on internal/installer/command/executor.go's process-spawn
// pattern, extended with signal escalation: a first Ctrl-C is forwarded to
// the child, a second kills it outright, since a dev tool vx delegates to
// (a compiler, a test runner) may itself ignore a single SIGINT.
func Execute(ctx context.Context, prepared *PreparedExecution, stdin, stdout, stderr *os.File) (int, error) {
	cmd := exec.CommandContext(ctx, prepared.Executable, prepared.Args...)
	cmd.Dir = prepared.Cwd
	cmd.Env = prepared.Env
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return 127, vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeExecuteFailed, "failed to start command", err).
			WithStage(vxerrors.StageExecute).WithDetail("executable", prepared.Executable)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	interrupted := false
	for {
		select {
		case sig := <-sigCh:
			if !interrupted {
				interrupted = true
				forwardSignal(cmd, sig)
				continue
			}
			_ = cmd.Process.Kill()

		case err := <-done:
			return exitCodeFor(err), nil
		}
	}
}

func forwardSignal(cmd *exec.Cmd, sig os.Signal) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
		return
	}
	_ = cmd.Process.Signal(sig)
}

// exitCodeFor translates a *exec.ExitError (or nil, on success) into vx's
// own exit code: 128+signum on a signal-terminated child, per spec.md's
// published exit code contract.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}
