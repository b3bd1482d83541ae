// Package system runs shell commands and reboots the board.
package system

//go:generate mockgen -destination=mocks/system.go -package=mocks . Runner,Rebooter

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

var ErrTimeout = errors.New("command timed out")

// Runner executes a command line and returns its combined output and exit code.
// A non-zero exit code is not an error; failing to start or finish the command is.
type Runner interface {
	Run(ctx context.Context, command string) (output []byte, exitCode int, err error)
}

// Shell runs commands through a shell binary with "-c".
type Shell struct {
	Path    string
	Timeout time.Duration
}

func (s Shell) Run(ctx context.Context, command string) ([]byte, int, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.Path, "-c", command)
	cmd.WaitDelay = time.Second // children may hold the output pipe after the shell is killed
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return out.Bytes(), -1, errors.Wrapf(ErrTimeout, "after %s", s.Timeout)
	}
	if err == nil {
		return out.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	return out.Bytes(), -1, errors.Wrapf(err, "run %s", s.Path)
}
