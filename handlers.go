package monitortcp

import (
	"encoding/binary"

	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// handler acts on one complete packet and returns the number of bytes it used.
// Failures the peer can recover from are answered with a status frame, a returned error ends the session.
type handler func(s *session, p []byte) (int, error)

var handlers map[model.Kind]handler

func init() {
	handlers = map[model.Kind]handler{
		model.KindWriteReg:      (*session).writeReg,
		model.KindReadReg:       (*session).readReg,
		model.KindReadBuffer:    (*session).readBuffer,
		model.KindFlankServo:    (*session).flankServo,
		model.KindWriteFile:     (*session).writeFile,
		model.KindReadFile:      (*session).readFile,
		model.KindShellCommand:  (*session).shellCommand,
		model.KindRebootMonitor: (*session).rebootMonitor,
		model.KindReadRepeat:    (*session).readRepeat,
	}
}

func (s *session) reply(k model.Kind, payload []byte) error {
	return s.writeResponse(k.Magic(), model.StatusOK, payload)
}

// ack confirms a write if the peer asked for write acknowledgements.
func (s *session) ack(k model.Kind) error {
	if !s.server.Protocol.AckWrites {
		return nil
	}
	return s.reply(k, nil)
}

func (s *session) fail(k model.Kind, err error) error {
	status := statusFor(err)
	l := s.log.WithFields(log.Fields{
		"kind":   k.String(),
		"status": model.StatusText(status),
	}).WithError(err)
	if status == model.StatusResourceFailure {
		l.Error("Request failed")
	} else {
		l.Debug("Request rejected")
	}

	return s.writeResponse(k.Magic(), status, []byte(err.Error()))
}

func (s *session) writeReg(p []byte) (int, error) {
	r, err := model.DecodeWriteReg(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindWriteReg, err)
	}

	if err = s.server.res.Registers.WriteReg(r.Address, r.Value); err != nil {
		return len(p), s.fail(model.KindWriteReg, err)
	}
	return len(p), s.ack(model.KindWriteReg)
}

func (s *session) readReg(p []byte) (int, error) {
	r, err := model.DecodeReadReg(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindReadReg, err)
	}

	v, err := s.server.res.Registers.ReadReg(r.Address)
	if err != nil {
		return len(p), s.fail(model.KindReadReg, err)
	}
	return len(p), s.reply(model.KindReadReg, appendU32(make([]byte, 0, 4), s.server.order, v))
}

func (s *session) readBuffer(p []byte) (int, error) {
	r, err := model.DecodeReadBuffer(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindReadBuffer, err)
	}
	if err = s.checkPoints(r.Points); err != nil {
		return len(p), s.fail(model.KindReadBuffer, err)
	}

	words := make([]uint32, r.Points)
	if err = s.server.res.Registers.ReadBlock(r.Address, words); err != nil {
		return len(p), s.fail(model.KindReadBuffer, err)
	}
	return len(p), s.reply(model.KindReadBuffer, appendWords(make([]byte, 0, 4*len(words)), s.server.order, words))
}

func (s *session) checkPoints(n uint32) error {
	if limit := s.server.Protocol.MaxReadPoints; n > limit {
		return errors.Wrapf(errInvalidField, "number_of_points %d above limit %d", n, limit)
	}
	return nil
}

func appendU32(b []byte, order binary.ByteOrder, v uint32) []byte {
	var w [4]byte
	order.PutUint32(w[:], v)
	return append(b, w[:]...)
}

func appendWords(b []byte, order binary.ByteOrder, words []uint32) []byte {
	for _, w := range words {
		b = appendU32(b, order, w)
	}
	return b
}

func (s *session) flankServo(p []byte) (int, error) {
	r, err := model.DecodeFlankServo(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindFlankServo, err)
	}

	if err = s.server.res.Servo.Apply(r); err != nil {
		return len(p), s.fail(model.KindFlankServo, err)
	}
	s.log.WithFields(log.Fields{
		"ramps":          r.Ramps,
		"steps":          r.Steps,
		"ramp_minimum":   r.RampMinimum,
		"max_iterations": r.MaxIterations,
	}).Debug("Flank servo parameters applied")
	return len(p), s.ack(model.KindFlankServo)
}

func (s *session) writeFile(p []byte) (int, error) {
	r, err := model.DecodeWriteFile(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindWriteFile, err)
	}

	if err = s.server.res.Files.WriteFile(r.Name, r.Content); err != nil {
		return len(p), s.fail(model.KindWriteFile, err)
	}
	s.log.WithFields(log.Fields{"file": r.Name, "size": len(r.Content)}).Info("File written")
	return len(p), s.ack(model.KindWriteFile)
}

func (s *session) readFile(p []byte) (int, error) {
	r, err := model.DecodeReadFile(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindReadFile, err)
	}

	content, err := s.server.res.Files.ReadFile(r.Name)
	if err != nil {
		return len(p), s.fail(model.KindReadFile, err)
	}
	if r.MaxLen > 0 && uint64(len(content)) > uint64(r.MaxLen) {
		content = content[:r.MaxLen]
	}
	return len(p), s.reply(model.KindReadFile, content)
}

func (s *session) shellCommand(p []byte) (int, error) {
	r, err := model.DecodeShellCommand(p, s.server.order)
	if err != nil {
		return len(p), s.fail(model.KindShellCommand, err)
	}

	out, code, err := s.server.res.Shell.Run(s.ctx, r.Command)
	if err != nil {
		return len(p), s.fail(model.KindShellCommand, err)
	}
	s.log.WithFields(log.Fields{"command": r.Command, "exit_code": code}).Debug("Shell command done")

	payload := make([]byte, 0, 4+len(out))
	payload = appendU32(payload, s.server.order, uint32(code))
	return len(p), s.reply(model.KindShellCommand, append(payload, out...))
}

// rebootMonitor confirms before rebooting since the connection does not survive it.
func (s *session) rebootMonitor(p []byte) (int, error) {
	s.setState(Rebooting)
	if err := s.reply(model.KindRebootMonitor, nil); err != nil {
		return len(p), err
	}
	if err := s.flush(); err != nil {
		return len(p), err
	}

	s.log.Warn("Rebooting monitor")
	if err := s.server.res.Rebooter.Reboot(); err != nil {
		s.log.WithError(err).Error("Reboot failed")
	}
	return len(p), errRebooting
}

// readRepeat consumes only the header. Zero points stops the running stream.
func (s *session) readRepeat(p []byte) (int, error) {
	n := model.KindReadRepeat.HeaderLen()
	r, err := model.DecodeReadRepeat(p, s.server.order)
	if err != nil {
		return n, s.fail(model.KindReadRepeat, err)
	}

	if r.Points == 0 {
		s.stopRepeat()
		s.log.Debug("Read repeat stopped")
		return n, nil
	}
	if err = s.checkPoints(r.Points); err != nil {
		return n, s.fail(model.KindReadRepeat, err)
	}

	s.startRepeat(r)
	s.log.WithFields(log.Fields{
		"address": r.Address,
		"points":  r.Points,
	}).Debug("Read repeat started")
	return n, nil
}
