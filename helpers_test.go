package monitortcp

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/RoanBrand/monitortcp/client"
	"github.com/RoanBrand/monitortcp/internal/config"
	"github.com/RoanBrand/monitortcp/internal/model"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.ErrorLevel)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var c config.Config
	c.TCP.Address = "127.0.0.1:0"
	c.Files.Dir = t.TempDir()
	c.Registers.Size = 64 << 10
	c.Repeat.Interval = 5
	return c
}

func newServer(t *testing.T, c config.Config, r Resources) *Server {
	t.Helper()
	s, err := New(c, r)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Shutdown()
		s.Wait()
	})
	return s
}

func startServer(t *testing.T, c config.Config, r Resources) *Server {
	t.Helper()
	s := newServer(t, c, r)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	return s
}

func dial(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c, err := client.Dial(s.Addr().String(), s.Protocol.ByteOrder)
	if err != nil {
		t.Fatal(err)
	}
	c.Timeout = 5 * time.Second
	c.AckWrites = s.Protocol.AckWrites
	t.Cleanup(func() { c.Close() })
	return c
}

func dialRaw(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, r net.Conn, order binary.ByteOrder) model.Response {
	t.Helper()
	r.SetReadDeadline(time.Now().Add(5 * time.Second))
	res, err := model.ReadResponse(r, order, 0)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(make([]byte, 1))
	if err == nil {
		t.Fatal("expected connection closed, read", n, "bytes")
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("connection still open")
	}
}

// pipe serves a session over an in-memory connection and discards everything it sends.
func pipe(t *testing.T, s *Server) net.Conn {
	t.Helper()
	srv, peer := net.Pipe()
	go s.ServeConn(srv)
	go io.Copy(io.Discard, peer)
	t.Cleanup(func() { peer.Close() })
	return peer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for", what)
		}
		time.Sleep(time.Millisecond)
	}
}
