package websocket

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol peers must request.
const Subprotocol = "monitor-tcp"

// NewServer returns an HTTP server that upgrades requests on path to websocket connections
// and hands them to dispatch as a net.Conn carrying the binary byte stream.
func NewServer(address, path string, checkOrigin bool, dispatch func(net.Conn)) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc(path, handler(checkOrigin, dispatch))
	return &http.Server{Addr: address, Handler: r}
}

func handler(checkOrigin bool, dispatch func(net.Conn)) func(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
	}
	if !checkOrigin {
		up.CheckOrigin = func(*http.Request) bool { return true }
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if protos := websocket.Subprotocols(r); len(protos) == 0 || protos[0] != Subprotocol {
			errMsg := "websocket client not supported. sub protocol must be '" + Subprotocol + "'"
			log.WithField("protocols", protos).Debug(errMsg)
			http.Error(w, errMsg, http.StatusNotAcceptable)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("unsuccessful websocket negotiation")
			return // Upgrade already replied with an HTTP error
		}

		go dispatch(NewConn(conn))
	}
}

// NewConn adapts a websocket connection to net.Conn. Each Write is sent as one binary message.
func NewConn(c *websocket.Conn) net.Conn {
	return &wsConn{Conn: c}
}

type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Write(p []byte) (int, error) {
	err := c.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			var err error
			var mt int
			if mt, c.r, err = c.NextReader(); err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				return 0, errors.New("not binary message")
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			} else {
				continue
			}
		}
		return n, err
	}
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetWriteDeadline(t); err != nil {
		return err
	}
	return c.SetReadDeadline(t)
}
