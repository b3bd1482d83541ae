package websocket

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func echo(c net.Conn) {
	defer c.Close()
	io.Copy(c, c)
}

func TestByteStream(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(NewServer("", "/monitor", false, echo).Handler)
	defer ts.Close()

	d := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/monitor"
	c, _, err := d.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// one packet split over two messages must come back whole
	if err = c.WriteMessage(websocket.BinaryMessage, []byte{0x34, 0x12}); err != nil {
		t.Fatal(err)
	}
	if err = c.WriteMessage(websocket.BinaryMessage, []byte{0xCD, 0xAB}); err != nil {
		t.Fatal(err)
	}

	var got []byte
	for len(got) < 4 {
		mt, p, err := c.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.BinaryMessage {
			t.Fatal("message type", mt)
		}
		got = append(got, p...)
	}
	if !bytes.Equal(got, []byte{0x34, 0x12, 0xCD, 0xAB}) {
		t.Fatalf("got % x", got)
	}
}

func TestRejectsOtherSubprotocol(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(NewServer("", "/monitor", false, echo).Handler)
	defer ts.Close()

	d := websocket.Dialer{Subprotocols: []string{"mqtt"}}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/monitor"
	_, resp, err := d.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotAcceptable {
		t.Fatal("expected 406, got", resp)
	}
}
