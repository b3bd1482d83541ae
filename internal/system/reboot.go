package system

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Rebooter restarts the board or the monitor process.
type Rebooter interface {
	Reboot() error
}

// CommandRebooter reboots by running a command, "reboot" on the board.
type CommandRebooter struct {
	Runner  Runner
	Command string
}

func (r CommandRebooter) Reboot() error {
	out, code, err := r.Runner.Run(context.Background(), r.Command)
	if err != nil {
		return errors.Wrap(err, "reboot")
	}
	if code != 0 {
		return errors.Errorf("reboot command exited with %d: %s", code, strings.TrimSpace(string(out)))
	}
	return nil
}
