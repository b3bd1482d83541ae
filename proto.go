package monitortcp

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/RoanBrand/monitortcp/internal/metrics"
	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/RoanBrand/monitortcp/internal/rxbuf"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrUnknownMagicTag means the stream lost sync. The connection is closed.
	ErrUnknownMagicTag = errors.New("unknown magic tag")
	// ErrCapacityExceeded means a packet can never fit the receive buffer. The connection is closed.
	ErrCapacityExceeded = errors.New("packet exceeds receive buffer capacity")

	errRebooting    = errors.New("monitor rebooting")
	errInvalidField = errors.New("invalid field value")
)

type outcome uint8

const (
	needMoreBytes outcome = iota
	recognized
	malformed
)

// decision is the result of one attempt to frame the next packet in the receive buffer.
type decision struct {
	outcome outcome
	state   State
	tag     uint32
	kind    model.Kind
	n       int // missing bytes for needMoreBytes, packet length for recognized
}

// decide looks at the unconsumed bytes and reports whether a complete packet is ready.
// It never consumes and never reads past the buffered data, so it can be called again as bytes arrive.
func decide(buf *rxbuf.Buffer, order binary.ByteOrder) (decision, error) {
	avail := buf.Available()
	head, _ := buf.Peek(min(avail, model.TagLen))
	tag, ok := model.MagicTag(head, order)
	if !ok {
		return decision{outcome: needMoreBytes, state: AwaitingTag, n: model.TagLen - avail}, nil
	}

	kind, ok := model.Lookup(tag)
	if !ok {
		return decision{outcome: malformed, state: Malformed, tag: tag}, ErrUnknownMagicTag
	}

	state := AwaitingHeader
	need := uint64(kind.HeaderLen())
	if uint64(avail) >= need && kind.HasTrailing() {
		header, _ := buf.Peek(int(need))
		need += kind.TrailingLen(header, order)
		state = AwaitingTrailingPayload
	}

	if need > uint64(buf.Max()) {
		return decision{outcome: malformed, state: Malformed, tag: tag, kind: kind}, ErrCapacityExceeded
	}
	if uint64(avail) < need {
		return decision{outcome: needMoreBytes, state: state, tag: tag, kind: kind, n: int(need) - avail}, nil
	}

	return decision{outcome: recognized, state: Dispatching, tag: tag, kind: kind, n: int(need)}, nil
}

// parseStream adds received bytes to the receive buffer and dispatches every complete packet.
// A returned error ends the connection.
func (s *session) parseStream(rx []byte) error {
	for len(rx) > 0 {
		room := s.rx.Max() - s.rx.Available()
		if room == 0 {
			return s.framingError(0, ErrCapacityExceeded)
		}

		n := min(room, len(rx))
		if err := s.rx.Append(rx[:n]); err != nil {
			return s.framingError(0, ErrCapacityExceeded)
		}
		rx = rx[n:]

		if err := s.dispatchBuffered(); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) dispatchBuffered() error {
	dispatched := false
	for {
		d, err := decide(s.rx, s.server.order)
		s.setState(d.state)
		if err != nil {
			return s.framingError(d.tag, err)
		}

		if d.outcome == needMoreBytes {
			if dispatched {
				s.rx.Compact()
			}
			return nil
		}

		s.log.WithFields(log.Fields{"kind": d.kind.String(), "len": d.n}).Debug("Dispatching packet")
		p, _ := s.rx.Peek(d.n)
		consumed, err := s.dispatch(d.kind, p)
		if cerr := s.rx.Consume(consumed); cerr != nil {
			return cerr
		}
		if err != nil {
			return err
		}
		dispatched = true
	}
}

// dispatch runs the handler for one complete packet and returns how many bytes it used.
func (s *session) dispatch(k model.Kind, p []byte) (int, error) {
	h := handlers[k]
	if h == nil {
		return 0, s.framingError(k.Magic(), ErrUnknownMagicTag)
	}

	if k != model.KindReadRepeat && s.server.Repeat.Exclusive && s.streaming() {
		return len(p), s.writeResponse(k.Magic(), model.StatusBusy, []byte("read_repeat stream running"))
	}

	if s.server.dispatchHook != nil {
		s.server.dispatchHook(k, p)
	}

	start := time.Now()
	n, err := h(s, p)
	metrics.RecordPacket(k.String(), time.Since(start))
	return n, err
}

// framingError tells the peer why the connection is about to close.
func (s *session) framingError(tag uint32, err error) error {
	s.setState(Malformed)
	status, reason := uint32(model.StatusUnknownTag), "unknown_tag"
	if errors.Is(err, ErrCapacityExceeded) {
		status, reason = model.StatusCapacityExceeded, "capacity_exceeded"
	}
	metrics.RecordFramingError(reason)

	s.log.WithField("tag", tag).WithError(err).Debug("framing error")
	if werr := s.writeResponse(tag, status, []byte(err.Error())); werr != nil {
		return werr
	}
	return err
}
