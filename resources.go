package monitortcp

import (
	"errors"

	"github.com/RoanBrand/monitortcp/internal/config"
	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/RoanBrand/monitortcp/internal/regs"
	"github.com/RoanBrand/monitortcp/internal/servo"
	"github.com/RoanBrand/monitortcp/internal/store"
	"github.com/RoanBrand/monitortcp/internal/system"
)

// Registers is the register window of the FPGA. Addresses are in bytes and word aligned.
// Implementations return regs.ErrInvalidAddress for addresses outside the window.
type Registers interface {
	ReadReg(addr uint32) (uint32, error)
	WriteReg(addr, value uint32) error
	ReadBlock(addr uint32, dst []uint32) error
}

// FileStore persists files for write_file and read_file.
type FileStore interface {
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
}

// ServoLoop applies flank servo parameters to the control loop.
type ServoLoop interface {
	Apply(p model.FlankServo) error
}

// Resources are the collaborators handlers act on. They are shared by all connections.
// Nil fields are created from the config when the Server is made.
type Resources struct {
	Registers Registers
	Files     FileStore
	Servo     ServoLoop
	Shell     system.Runner
	Rebooter  system.Rebooter
}

func (s *Server) setupResources(c *config.Config) error {
	r := &s.res

	if r.Registers == nil {
		if c.Registers.Device != "" {
			m, err := regs.OpenDevMem(c.Registers.Device, c.Registers.Base, c.Registers.Size)
			if err != nil {
				return err
			}
			s.closers = append(s.closers, m)
			r.Registers = m
		} else {
			r.Registers = regs.NewMap(c.Registers.Size)
		}
	}

	if r.Files == nil {
		switch c.Files.Backend {
		case "badger":
			b, err := store.NewBadger(c.Files.Dir)
			if err != nil {
				return err
			}
			s.closers = append(s.closers, b)
			r.Files = b
		default:
			d, err := store.NewDir(c.Files.Dir)
			if err != nil {
				return err
			}
			r.Files = d
		}
	}

	if r.Servo == nil {
		r.Servo = servo.NewController(c.Servo)
	}

	if r.Shell == nil {
		r.Shell = system.Shell{Path: c.Shell.Shell, Timeout: c.ShellTimeout()}
	}

	if r.Rebooter == nil {
		r.Rebooter = system.CommandRebooter{Runner: r.Shell, Command: c.Reboot.Command}
	}

	return nil
}

func (s *Server) closeResources() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// statusFor maps a handler failure to the status sent to the peer.
func statusFor(err error) uint32 {
	switch {
	case errors.Is(err, regs.ErrInvalidAddress),
		errors.Is(err, store.ErrInvalidName),
		errors.Is(err, servo.ErrInvalidParams),
		errors.Is(err, errInvalidField):
		return model.StatusInvalidField
	default:
		return model.StatusResourceFailure
	}
}
