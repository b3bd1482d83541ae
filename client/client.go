// Package client talks to a monitor server from the peer side.
package client

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/pkg/errors"
)

// StatusError is a non-OK response from the server.
type StatusError struct {
	Tag     uint32
	Status  uint32
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", model.StatusText(e.Status), e.Message)
}

// Client sends requests over one connection. Requests are not pipelined: each call waits for its reply.
type Client struct {
	conn  net.Conn
	r     *bufio.Reader
	order binary.ByteOrder

	// AckWrites must match the server's protocol.ack_writes, so write calls know to wait for a reply.
	AckWrites bool
	// MaxPayload bounds response payloads, 0 for no limit.
	MaxPayload uint32
	// Timeout applies to every request round trip, 0 for none.
	Timeout time.Duration

	mu  sync.Mutex
	buf []byte
}

// Dial connects to a monitor server at addr using byte order "little" or "big".
func Dial(addr, byteOrder string) (*Client, error) {
	order, err := model.ParseByteOrder(byteOrder)
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial monitor")
	}
	return New(conn, order), nil
}

// New wraps an established connection.
func New(conn net.Conn, order binary.ByteOrder) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn), order: order}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) deadline() {
	if c.Timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.Timeout))
	}
}

// send writes one encoded packet and, if wait is set, reads and checks the reply.
func (c *Client) send(encode func(b []byte) []byte, wait bool) (model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadline()
	c.buf = encode(c.buf[:0])
	if _, err := c.conn.Write(c.buf); err != nil {
		return model.Response{}, errors.Wrap(err, "send request")
	}
	if !wait {
		return model.Response{}, nil
	}
	return c.read(false)
}

// read returns the next reply. Stream frames still in flight are skipped unless stream is set.
func (c *Client) read(stream bool) (model.Response, error) {
	var res model.Response
	for {
		var err error
		res, err = model.ReadResponse(c.r, c.order, c.MaxPayload)
		if err != nil {
			return res, errors.Wrap(err, "read response")
		}
		if stream || res.Tag != model.MagicReadRepeat {
			break
		}
	}
	if !res.OK() {
		return res, &StatusError{Tag: res.Tag, Status: res.Status, Message: string(res.Payload)}
	}
	return res, nil
}

func (c *Client) WriteReg(addr, value uint32) error {
	_, err := c.send(func(b []byte) []byte {
		return model.AppendWriteReg(b, c.order, model.WriteReg{Address: addr, Value: value})
	}, c.AckWrites)
	return err
}

func (c *Client) ReadReg(addr uint32) (uint32, error) {
	res, err := c.send(func(b []byte) []byte {
		return model.AppendReadReg(b, c.order, model.ReadReg{Address: addr})
	}, true)
	if err != nil {
		return 0, err
	}
	if len(res.Payload) != 4 {
		return 0, errors.Errorf("read_reg reply has %d bytes", len(res.Payload))
	}
	return c.order.Uint32(res.Payload), nil
}

// ReadBuffer reads points consecutive registers starting at addr.
func (c *Client) ReadBuffer(addr, points uint32) ([]uint32, error) {
	res, err := c.send(func(b []byte) []byte {
		return model.AppendReadBuffer(b, c.order, model.ReadBuffer{Address: addr, Points: points})
	}, true)
	if err != nil {
		return nil, err
	}
	return c.words(res.Payload)
}

func (c *Client) words(p []byte) ([]uint32, error) {
	if len(p)%4 != 0 {
		return nil, errors.Errorf("payload of %d bytes is not whole words", len(p))
	}
	w := make([]uint32, len(p)/4)
	for i := range w {
		w[i] = c.order.Uint32(p[4*i:])
	}
	return w, nil
}

func (c *Client) FlankServo(p model.FlankServo) error {
	_, err := c.send(func(b []byte) []byte {
		return model.AppendFlankServo(b, c.order, p)
	}, c.AckWrites)
	return err
}

func (c *Client) WriteFile(name string, content []byte) error {
	_, err := c.send(func(b []byte) []byte {
		return model.AppendWriteFile(b, c.order, model.WriteFile{Name: name, Content: content})
	}, c.AckWrites)
	return err
}

// ReadFile returns the file content, at most maxLen bytes unless maxLen is 0.
func (c *Client) ReadFile(name string, maxLen uint32) ([]byte, error) {
	res, err := c.send(func(b []byte) []byte {
		return model.AppendReadFile(b, c.order, model.ReadFile{Name: name, MaxLen: maxLen})
	}, true)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// Shell runs command on the board and returns its exit code and combined output.
func (c *Client) Shell(command string) (int, []byte, error) {
	res, err := c.send(func(b []byte) []byte {
		return model.AppendShellCommand(b, c.order, model.ShellCommand{Command: command})
	}, true)
	if err != nil {
		return 0, nil, err
	}
	if len(res.Payload) < 4 {
		return 0, nil, errors.New("shell reply too short")
	}
	return int(int32(c.order.Uint32(res.Payload))), res.Payload[4:], nil
}

// Reboot waits for the server to confirm. The server closes the connection afterwards.
func (c *Client) Reboot() error {
	_, err := c.send(func(b []byte) []byte {
		return model.AppendRebootMonitor(b, c.order)
	}, true)
	return err
}

// StartRepeat starts streaming points reads of addr. Use NextRepeat to receive them.
func (c *Client) StartRepeat(addr, points uint32) error {
	_, err := c.send(func(b []byte) []byte {
		return model.AppendReadRepeat(b, c.order, model.ReadRepeat{Address: addr, Points: points})
	}, false)
	return err
}

// StopRepeat stops the stream. Frames already sent still have to be drained with NextRepeat.
func (c *Client) StopRepeat() error {
	return c.StartRepeat(0, 0)
}

// NextRepeat blocks until the next streamed frame arrives.
func (c *Client) NextRepeat() ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadline()
	res, err := c.read(true)
	if err != nil {
		return nil, err
	}
	if res.Tag != model.MagicReadRepeat {
		return nil, errors.Errorf("unexpected frame with tag %#x", res.Tag)
	}
	return c.words(res.Payload)
}
