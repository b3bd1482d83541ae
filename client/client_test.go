package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/RoanBrand/monitortcp/internal/model"
)

// fakeServer answers each request read from conn with the next canned frame.
func fakeServer(t *testing.T, conn net.Conn, order binary.ByteOrder, headerLen int, replies ...model.Response) <-chan []byte {
	t.Helper()
	got := make(chan []byte, len(replies)+1)
	go func() {
		defer conn.Close()
		for _, r := range replies {
			req := make([]byte, headerLen)
			if _, err := io.ReadFull(conn, req); err != nil {
				return
			}
			got <- req
			if _, err := conn.Write(model.AppendResponse(nil, order, r)); err != nil {
				return
			}
		}
	}()
	return got
}

func TestReadReg(t *testing.T) {
	t.Parallel()
	order := binary.LittleEndian
	srv, peer := net.Pipe()
	c := New(peer, order)
	c.Timeout = time.Second
	defer c.Close()

	got := fakeServer(t, srv, order, 12, model.Response{
		Tag:     model.MagicReadReg,
		Payload: []byte{42, 0, 0, 0},
	})

	v, err := c.ReadReg(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatal("got", v)
	}

	req := <-got
	want := model.AppendReadReg(nil, order, model.ReadReg{Address: 0x1000})
	if !bytes.Equal(req, want) {
		t.Fatalf("request % x, want % x", req, want)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	order := binary.BigEndian
	srv, peer := net.Pipe()
	c := New(peer, order)
	c.Timeout = time.Second
	defer c.Close()

	fakeServer(t, srv, order, 12, model.Response{
		Tag:     model.MagicReadReg,
		Status:  model.StatusInvalidField,
		Payload: []byte("invalid register address"),
	})

	_, err := c.ReadReg(3)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatal("expected status error, got", err)
	}
	if se.Status != model.StatusInvalidField || se.Message != "invalid register address" {
		t.Fatalf("got %+v", se)
	}
}

func TestSkipsStreamFrames(t *testing.T) {
	t.Parallel()
	order := binary.LittleEndian
	srv, peer := net.Pipe()
	c := New(peer, order)
	c.Timeout = time.Second
	defer c.Close()

	go func() {
		defer srv.Close()
		req := make([]byte, 12)
		if _, err := io.ReadFull(srv, req); err != nil {
			return
		}
		var b []byte
		b = model.AppendResponse(b, order, model.Response{Tag: model.MagicReadRepeat, Payload: []byte{1, 0, 0, 0}})
		b = model.AppendResponse(b, order, model.Response{Tag: model.MagicReadBuffer, Payload: []byte{5, 0, 0, 0, 6, 0, 0, 0}})
		srv.Write(b)
	}()

	w, err := c.ReadBuffer(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(w) != 2 || w[0] != 5 || w[1] != 6 {
		t.Fatal("got", w)
	}
}

func TestShellReply(t *testing.T) {
	t.Parallel()
	order := binary.LittleEndian
	srv, peer := net.Pipe()
	c := New(peer, order)
	c.Timeout = time.Second
	defer c.Close()

	cmd := "uname -a"
	fakeServer(t, srv, order, 12+len(cmd), model.Response{
		Tag:     model.MagicShellCommand,
		Payload: append([]byte{2, 0, 0, 0}, "Linux"...),
	})

	code, out, err := c.Shell(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if code != 2 || string(out) != "Linux" {
		t.Fatal("got", code, string(out))
	}
}

func TestDialBadByteOrder(t *testing.T) {
	t.Parallel()
	if _, err := Dial("127.0.0.1:1", "middle"); err == nil {
		t.Fatal("expected error")
	}
}
