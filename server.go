package monitortcp

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/RoanBrand/monitortcp/internal/config"
	"github.com/RoanBrand/monitortcp/internal/metrics"
	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/RoanBrand/monitortcp/internal/websocket"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Server accepts peer connections and serves the monitor protocol on each of them.
type Server struct {
	config.Config
	res Resources

	order   binary.ByteOrder
	closers []io.Closer

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	tcpL, tlsL net.Listener
	ws, mon    *http.Server

	sesLock  sync.Mutex
	sessions map[*session]struct{}
	conns    sync.WaitGroup

	dispatchHook func(k model.Kind, p []byte) // called before each handler, tests only
}

// New validates c and prepares the resources handlers act on.
// Resources left nil in r are created from the config.
func New(c config.Config, r Resources) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	order, err := model.ParseByteOrder(c.Protocol.ByteOrder)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Config:   c,
		res:      r,
		order:    order,
		sessions: make(map[*session]struct{}, 4),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err = s.setupLogging(); err != nil {
		return nil, err
	}
	if err = s.setupResources(&s.Config); err != nil {
		s.closeResources()
		return nil, err
	}

	return s, nil
}

// Run starts the listeners and blocks until one of them fails or the server is shut down.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Wait()
}

// Start opens all configured listeners and serves them in the background.
func (s *Server) Start() error {
	s.g, _ = errgroup.WithContext(s.ctx)

	if err := s.setupTCP(); err != nil {
		return err
	}
	if err := s.setupTLS(); err != nil {
		return err
	}
	if err := s.setupWebsocket(); err != nil {
		return err
	}
	if err := s.setupMetrics(); err != nil {
		return err
	}

	lf := make(log.Fields, 4)
	if s.tcpL != nil {
		lf["tcp_address"] = s.tcpL.Addr().String()
	}
	if s.tlsL != nil {
		lf["tls_address"] = s.tlsL.Addr().String()
	}
	if s.ws != nil {
		lf["ws_address"] = s.WS.Address + s.WS.Path
	}
	if s.mon != nil {
		lf["metrics_address"] = s.Metrics.Address + s.Metrics.Path
	}
	lf["byte_order"] = s.Protocol.ByteOrder
	log.WithFields(lf).Info("Starting monitor server")

	return nil
}

// Wait blocks until all listeners have stopped.
func (s *Server) Wait() error {
	if s.g == nil {
		return nil
	}
	return s.g.Wait()
}

// Addr returns the TCP listener address, or nil if TCP is not served.
func (s *Server) Addr() net.Addr {
	if s.tcpL == nil {
		return nil
	}
	return s.tcpL.Addr()
}

// Shutdown stops the listeners, ends every session and releases resources.
func (s *Server) Shutdown() {
	log.Info("Shutting down monitor server")
	s.cancel()
	if s.tcpL != nil {
		s.tcpL.Close()
	}
	if s.tlsL != nil {
		s.tlsL.Close()
	}
	if s.ws != nil {
		s.ws.Close()
	}
	if s.mon != nil {
		s.mon.Close()
	}

	s.sesLock.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for ses := range s.sessions {
		sessions = append(sessions, ses)
	}
	s.sesLock.Unlock()

	for _, ses := range sessions {
		ses.end()
	}
	s.conns.Wait() // handlers are done with the resources

	if err := s.closeResources(); err != nil {
		log.WithError(err).Error("failed to close resources")
	}
}

func (s *Server) setupLogging() error {
	if s.Log.File != "" {
		f, err := os.OpenFile(s.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	if s.Log.Level != "" {
		switch strings.ToLower(s.Log.Level) {
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		default:
			return errors.New("unknown log level: " + s.Log.Level)
		}
	}

	return nil
}

func (s *Server) setupTCP() error {
	if s.TCP.Address == "" {
		return nil
	}

	l, err := net.Listen("tcp", s.TCP.Address)
	if err != nil {
		return err
	}

	s.tcpL = l
	s.g.Go(func() error { return s.startDispatcher(l) })
	return nil
}

func (s *Server) setupTLS() error {
	if s.TLS.Address == "" {
		return nil
	}

	kp, err := tls.LoadX509KeyPair(s.TLS.Cert, s.TLS.Key)
	if err != nil {
		return err
	}
	config := tls.Config{Certificates: []tls.Certificate{kp}}

	l, err := tls.Listen("tcp", s.TLS.Address, &config)
	if err != nil {
		return err
	}

	s.tlsL = l
	s.g.Go(func() error { return s.startDispatcher(l) })
	return nil
}

func (s *Server) setupWebsocket() error {
	if s.WS.Address == "" {
		return nil
	}

	s.ws = websocket.NewServer(s.WS.Address, s.WS.Path, s.WS.CheckOrigin, s.ServeConn)
	s.g.Go(func() error {
		if err := s.ws.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return nil
}

func (s *Server) setupMetrics() error {
	if s.Metrics.Address == "" {
		return nil
	}

	r := mux.NewRouter()
	r.Handle(s.Metrics.Path, metrics.Handler()).Methods(http.MethodGet)
	s.mon = &http.Server{Addr: s.Metrics.Address, Handler: r}
	s.g.Go(func() error {
		if err := s.mon.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return nil
}

func (s *Server) startDispatcher(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		go s.ServeConn(conn)
	}
}

func (s *Server) addSession(ses *session) {
	s.sesLock.Lock()
	s.sessions[ses] = struct{}{}
	n := len(s.sessions)
	s.sesLock.Unlock()
	metrics.SessionOpened()

	ses.log.WithField("sessions", n).Info("New session")
}

func (s *Server) removeSession(ses *session) {
	s.sesLock.Lock()
	delete(s.sessions, ses)
	s.sesLock.Unlock()
	metrics.SessionClosed()

	ses.log.Debug("Session removed")
}

// Sessions returns the number of connected peers.
func (s *Server) Sessions() int {
	s.sesLock.Lock()
	defer s.sesLock.Unlock()
	return len(s.sessions)
}
