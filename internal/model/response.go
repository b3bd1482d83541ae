package model

import (
	"encoding/binary"
	"errors"
	"io"
)

// ResponseHeaderLen is tag + status + payload length.
const ResponseHeaderLen = 12

// Response status codes
const (
	StatusOK               = 0
	StatusInvalidField     = 1
	StatusResourceFailure  = 2
	StatusUnknownTag       = 3
	StatusCapacityExceeded = 4
	StatusBusy             = 5
)

var statusText = map[uint32]string{
	StatusOK:               "ok",
	StatusInvalidField:     "invalid field value",
	StatusResourceFailure:  "resource failure",
	StatusUnknownTag:       "unknown magic tag",
	StatusCapacityExceeded: "capacity exceeded",
	StatusBusy:             "busy",
}

func StatusText(code uint32) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "unknown status"
}

// Response is one frame sent back to the peer.
type Response struct {
	Tag     uint32 // magic bytes of the request answered, 0 for framing errors
	Status  uint32
	Payload []byte
}

func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// AppendResponseHeader writes the frame header for a payload of n bytes.
func AppendResponseHeader(b []byte, order binary.ByteOrder, tag, status uint32, n int) []byte {
	b = appendU32(b, order, tag)
	b = appendU32(b, order, status)
	return appendU32(b, order, uint32(n))
}

func AppendResponse(b []byte, order binary.ByteOrder, r Response) []byte {
	b = AppendResponseHeader(b, order, r.Tag, r.Status, len(r.Payload))
	return append(b, r.Payload...)
}

var ErrResponseTooLarge = errors.New("response payload exceeds limit")

// ReadResponse reads one complete response frame from r.
// maxPayload of 0 disables the size check.
func ReadResponse(r io.Reader, order binary.ByteOrder, maxPayload uint32) (Response, error) {
	var h [ResponseHeaderLen]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Response{}, err
	}

	res := Response{Tag: order.Uint32(h[0:]), Status: order.Uint32(h[4:])}
	n := order.Uint32(h[8:])
	if maxPayload > 0 && n > maxPayload {
		return Response{}, ErrResponseTooLarge
	}

	res.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, res.Payload); err != nil {
		return Response{}, err
	}
	return res, nil
}
