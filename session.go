package monitortcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoanBrand/monitortcp/internal/metrics"
	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/RoanBrand/monitortcp/internal/rxbuf"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var aLongTimeAgo = time.Unix(1, 0) // used for cancellation

// State is where a connection is in receiving and dispatching a packet.
type State uint8

const (
	AwaitingTag State = iota
	AwaitingHeader
	AwaitingTrailingPayload
	Dispatching
	Malformed
	Rebooting
	Closed
)

var stateNames = [...]string{
	AwaitingTag:             "awaiting_tag",
	AwaitingHeader:          "awaiting_header",
	AwaitingTrailingPayload: "awaiting_trailing_payload",
	Dispatching:             "dispatching",
	Malformed:               "malformed",
	Rebooting:               "rebooting",
	Closed:                  "closed",
}

func (st State) String() string {
	if int(st) < len(stateNames) {
		return stateNames[st]
	}
	return "unknown"
}

type session struct {
	server *Server
	id     string
	conn   net.Conn
	log    *log.Entry

	rx    *rxbuf.Buffer
	state atomic.Uint32

	tx      *bufio.Writer
	txFlush chan struct{}
	txLock  sync.Mutex
	hdr     []byte

	frames  chan []byte // complete read_repeat frames for the writer
	repLock sync.Mutex
	repeat  *repeater

	onlyOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	ended    sync.WaitGroup
}

func (s *session) setState(st State) {
	s.state.Store(uint32(st))
}

func (s *session) getState() State {
	return State(s.state.Load())
}

func (s *Server) newSession(conn net.Conn) *session {
	ctx, cancel := context.WithCancel(s.ctx)
	ses := &session{
		server:  s,
		id:      uuid.NewString(),
		conn:    conn,
		rx:      rxbuf.New(4096, s.Protocol.MaxBuffer),
		tx:      bufio.NewWriter(conn),
		txFlush: make(chan struct{}, 1),
		hdr:     make([]byte, 0, model.ResponseHeaderLen),
		frames:  make(chan []byte, s.Repeat.Queue),
		ctx:     ctx,
		cancel:  cancel,
	}
	ses.log = log.WithFields(log.Fields{
		"session": ses.id,
		"remote":  conn.RemoteAddr().String(),
	})
	return ses
}

// ServeConn runs the protocol on conn until the peer disconnects, the stream turns out malformed,
// the monitor reboots or the server shuts down. conn is closed on return.
func (s *Server) ServeConn(conn net.Conn) {
	s.conns.Add(1)
	defer s.conns.Done()
	if s.ctx.Err() != nil {
		conn.Close()
		return
	}

	ses := s.newSession(conn)
	s.addSession(ses)
	defer s.removeSession(ses)

	ses.ended.Add(1)
	go ses.startWriter()
	defer ses.end()

	rx := make([]byte, 4096)
	for {
		ses.updateTimeout()
		nRx, err := conn.Read(rx)
		if nRx > 0 {
			if perr := ses.parseStream(rx[:nRx]); perr != nil {
				ses.handleParseError(perr)
				return
			}
		}
		if err != nil {
			ses.readError(err)
			return
		}
	}
}

func (s *session) updateTimeout() {
	if d := s.server.IdleTimeout(); d > 0 {
		s.conn.SetReadDeadline(time.Now().Add(d))
	}
}

func (s *session) end() {
	s.onlyOnce.Do(func() {
		s.conn.SetReadDeadline(aLongTimeAgo)
		s.cancel()

		s.stopRepeat()
		s.ended.Wait()

		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		s.txLock.Lock()
		err := s.tx.Flush()
		s.tx.Reset(io.Discard)
		s.txLock.Unlock()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.WithError(err).Debug("failed to flush tx buffer")
		}

		s.conn.Close()
		s.setState(Closed)
		s.log.Info("Session ended")
	})
}

func (s *session) readError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		s.log.Debug("Peer closed connection")
		return
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		if s.ctx.Err() != nil {
			return // because of session ended
		}
		s.log.Debug("Idle timeout. Dropping connection")
		return
	}

	s.log.WithError(err).Error("TCP RX error")
}

func (s *session) handleParseError(err error) {
	switch {
	case errors.Is(err, errRebooting):
		s.log.Info("Monitor rebooting, closing connection")
	case errors.Is(err, ErrUnknownMagicTag), errors.Is(err, ErrCapacityExceeded):
		s.log.WithError(err).Warn("Protocol violation, closing connection")
	default:
		s.log.WithError(err).Debug("connection failure")
	}
}

// writeResponse queues one response frame. The writer goroutine flushes it.
func (s *session) writeResponse(tag, status uint32, payload []byte) error {
	metrics.RecordResponse(kindName(tag), model.StatusText(status))

	s.txLock.Lock()
	s.hdr = model.AppendResponseHeader(s.hdr[:0], s.server.order, tag, status, len(payload))
	if _, err := s.tx.Write(s.hdr); err != nil {
		s.txLock.Unlock()
		return err
	}
	if _, err := s.tx.Write(payload); err != nil {
		s.txLock.Unlock()
		return err
	}

	s.notifyFlusher()
	s.txLock.Unlock()
	return nil
}

func kindName(tag uint32) string {
	if k, ok := model.Lookup(tag); ok {
		return k.String()
	}
	return "none"
}

// flush writes out everything queued so far from the calling goroutine.
func (s *session) flush() error {
	s.txLock.Lock()
	defer s.txLock.Unlock()
	return s.tx.Flush()
}

func (s *session) notifyFlusher() {
	if len(s.txFlush) == 0 {
		select {
		case s.txFlush <- struct{}{}:
		default:
		}
	}
}

func (s *session) startWriter() {
	defer s.ended.Done()
	done := s.ctx.Done()

	for {
		select {
		case <-done:
			return
		case f := <-s.frames:
			s.txLock.Lock()
			_, err := s.tx.Write(f)
			if err == nil {
				err = s.tx.Flush()
			}
			s.txLock.Unlock()
			if err != nil {
				s.writeError(err)
				return
			}
		case <-s.txFlush:
			s.txLock.Lock()
			var err error
			if s.tx.Buffered() > 0 {
				err = s.tx.Flush()
			}
			s.txLock.Unlock()
			if err != nil {
				s.writeError(err)
				return
			}
		}
	}
}

func (s *session) writeError(err error) {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return
	}
	s.log.WithError(err).Error("TCP TX error")
	s.cancel()
	s.conn.SetReadDeadline(aLongTimeAgo) // reader ends the session
}
