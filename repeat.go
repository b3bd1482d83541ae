package monitortcp

import (
	"context"
	"time"

	"github.com/RoanBrand/monitortcp/internal/metrics"
	"github.com/RoanBrand/monitortcp/internal/model"
)

// repeater streams register reads to the peer until cancelled.
type repeater struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startRepeat replaces any running stream with one for r.
func (s *session) startRepeat(r model.ReadRepeat) {
	s.repLock.Lock()
	defer s.repLock.Unlock()
	s.stopRepeatLocked()

	ctx, cancel := context.WithCancel(s.ctx)
	rep := &repeater{cancel: cancel, done: make(chan struct{})}
	s.repeat = rep
	go s.runRepeat(ctx, rep, r)
}

func (s *session) stopRepeat() {
	s.repLock.Lock()
	s.stopRepeatLocked()
	s.repLock.Unlock()
}

func (s *session) stopRepeatLocked() {
	if s.repeat == nil {
		return
	}
	s.repeat.cancel()
	<-s.repeat.done
	s.repeat = nil
}

// streaming reports whether a read_repeat stream is running.
func (s *session) streaming() bool {
	s.repLock.Lock()
	defer s.repLock.Unlock()
	if s.repeat == nil {
		return false
	}
	select {
	case <-s.repeat.done:
		return false
	default:
		return true
	}
}

func (s *session) runRepeat(ctx context.Context, rep *repeater, r model.ReadRepeat) {
	defer close(rep.done)
	t := time.NewTicker(s.server.RepeatInterval())
	defer t.Stop()

	words := make([]uint32, r.Points)
	for {
		f, err := s.repeatFrame(r.Address, words)
		if err != nil {
			s.log.WithError(err).WithField("address", r.Address).Error("Read repeat failed")
			f = model.AppendResponse(nil, s.server.order, model.Response{
				Tag:     model.KindReadRepeat.Magic(),
				Status:  statusFor(err),
				Payload: []byte(err.Error()),
			})
		}

		select {
		case <-ctx.Done():
			return
		case s.frames <- f:
			metrics.RecordRepeatFrame()
		}
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// repeatFrame drains the register at addr once per word, the way the data logger FIFO is read out.
func (s *session) repeatFrame(addr uint32, words []uint32) ([]byte, error) {
	for i := range words {
		v, err := s.server.res.Registers.ReadReg(addr)
		if err != nil {
			return nil, err
		}
		words[i] = v
	}

	f := make([]byte, 0, model.ResponseHeaderLen+4*len(words))
	f = model.AppendResponseHeader(f, s.server.order, model.KindReadRepeat.Magic(), model.StatusOK, 4*len(words))
	return appendWords(f, s.server.order, words), nil
}
