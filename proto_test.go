package monitortcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RoanBrand/monitortcp/internal/model"
	"github.com/RoanBrand/monitortcp/internal/rxbuf"
)

func TestDecideNeedMore(t *testing.T) {
	t.Parallel()
	order := binary.LittleEndian
	wf := model.AppendWriteFile(nil, order, model.WriteFile{Name: "a.txt", Content: []byte("hello")})

	cases := []struct {
		have  int
		state State
		need  int
	}{
		{0, AwaitingTag, 4},
		{2, AwaitingTag, 2},
		{4, AwaitingHeader, 8},
		{8, AwaitingHeader, 4},
		{12, AwaitingTrailingPayload, 10},
		{21, AwaitingTrailingPayload, 1},
	}
	for _, tc := range cases {
		buf := rxbuf.New(16, 1024)
		if err := buf.Append(wf[:tc.have]); err != nil {
			t.Fatal(err)
		}

		d, err := decide(buf, order)
		if err != nil {
			t.Fatal(err)
		}
		if d.outcome != needMoreBytes || d.state != tc.state || d.n != tc.need {
			t.Fatalf("with %d bytes got %+v", tc.have, d)
		}

		// asking again changes nothing
		again, _ := decide(buf, order)
		if again != d || buf.Available() != tc.have {
			t.Fatalf("decide not idempotent: %+v then %+v", d, again)
		}
	}

	buf := rxbuf.New(16, 1024)
	buf.Append(wf)
	d, err := decide(buf, order)
	if err != nil {
		t.Fatal(err)
	}
	if d.outcome != recognized || d.kind != model.KindWriteFile || d.n != len(wf) {
		t.Fatalf("got %+v", d)
	}
}

func TestDecideUnknownTag(t *testing.T) {
	t.Parallel()
	buf := rxbuf.New(16, 1024)
	buf.Append([]byte{0xEF, 0xBE, 0xAD, 0xDE, 0, 0})

	d, err := decide(buf, binary.LittleEndian)
	if !errors.Is(err, ErrUnknownMagicTag) {
		t.Fatal("got", err)
	}
	if d.outcome != malformed || d.tag != 0xDEADBEEF {
		t.Fatalf("got %+v", d)
	}
}

func TestDecideCapacityExceeded(t *testing.T) {
	t.Parallel()
	order := binary.BigEndian
	wf := model.AppendWriteFile(nil, order, model.WriteFile{Name: strings.Repeat("n", 100)})

	buf := rxbuf.New(64, 64)
	buf.Append(wf[:12])
	if _, err := decide(buf, order); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatal("got", err)
	}
}

func testStream(order binary.ByteOrder) [][]byte {
	return [][]byte{
		model.AppendWriteReg(nil, order, model.WriteReg{Address: 0x1000, Value: 42}),
		model.AppendReadReg(nil, order, model.ReadReg{Address: 0x1000}),
		model.AppendWriteFile(nil, order, model.WriteFile{Name: "cal/offsets.txt", Content: []byte("dac0=12\ndac1=-3\n")}),
		model.AppendReadBuffer(nil, order, model.ReadBuffer{Address: 0x40, Points: 0}),
		model.AppendFlankServo(nil, order, model.FlankServo{
			StopAfterZC: 1, RampMinimum: -100, Ramps: 2, Steps: 200, MaxIterations: 10, Threshold: 50, Ki: 0.5,
		}),
		model.AppendReadFile(nil, order, model.ReadFile{Name: "cal/offsets.txt"}),
		model.AppendWriteFile(nil, order, model.WriteFile{Name: "empty"}),
		model.AppendReadBuffer(nil, order, model.ReadBuffer{Address: 0x1000, Points: 4}),
	}
}

type call struct {
	kind model.Kind
	p    []byte
}

func TestChunkedDispatch(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"little", "big"} {
		order, _ := model.ParseByteOrder(name)
		packets := testStream(order)
		stream := bytes.Join(packets, nil)

		for _, chunk := range []int{1, 2, 3, 5, 7, 11, 29, len(stream)} {
			c := testConfig(t)
			c.Protocol.ByteOrder = name
			s := newServer(t, c, Resources{})

			calls := make(chan call, len(packets))
			s.dispatchHook = func(k model.Kind, p []byte) {
				calls <- call{k, bytes.Clone(p)}
			}

			peer := pipe(t, s)
			for rest := stream; len(rest) > 0; {
				n := min(chunk, len(rest))
				if _, err := peer.Write(rest[:n]); err != nil {
					t.Fatal(err)
				}
				rest = rest[n:]
			}

			for i, want := range packets {
				select {
				case got := <-calls:
					wantKind, _ := model.Lookup(order.Uint32(want))
					if got.kind != wantKind || !bytes.Equal(got.p, want) {
						t.Fatalf("%s chunk %d packet %d: got %s % x", name, chunk, i, got.kind, got.p)
					}
				case <-time.After(5 * time.Second):
					t.Fatalf("%s chunk %d: packet %d never dispatched", name, chunk, i)
				}
			}
			select {
			case extra := <-calls:
				t.Fatalf("extra dispatch of %s", extra.kind)
			default:
			}
		}
	}
}

func TestNeverCompleteHeader(t *testing.T) {
	t.Parallel()
	s := newServer(t, testConfig(t), Resources{})
	s.dispatchHook = func(k model.Kind, p []byte) {
		t.Error("dispatched", k)
	}

	peer := pipe(t, s)
	fs := model.AppendFlankServo(nil, s.order, model.FlankServo{Ramps: 1})
	if _, err := peer.Write(fs[:20]); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "header state", func() bool {
		s.sesLock.Lock()
		defer s.sesLock.Unlock()
		for ses := range s.sessions {
			return ses.getState() == AwaitingHeader
		}
		return false
	})
}

func FuzzParseStream(f *testing.F) {
	order := binary.LittleEndian
	for _, p := range testStream(order) {
		f.Add(p)
	}
	f.Add(bytes.Join(testStream(order), nil))
	f.Add([]byte{0x37, 0x12, 0xCD, 0xAB, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		buf := rxbuf.New(64, 4096)
		for len(data) > 0 {
			n := min(len(data), buf.Max()-buf.Available())
			if err := buf.Append(data[:n]); err != nil {
				t.Fatal(err)
			}
			data = data[n:]

			for {
				d, err := decide(buf, order)
				if err != nil {
					return
				}
				if d.outcome == needMoreBytes {
					if d.n <= 0 {
						t.Fatalf("need more with n=%d", d.n)
					}
					break
				}
				if d.n > buf.Available() {
					t.Fatalf("recognized %d bytes with %d available", d.n, buf.Available())
				}
				p, _ := buf.Peek(d.n)
				decodeAny(t, d.kind, p, order)
				buf.Consume(d.n)
			}
		}
	})
}

func decodeAny(t *testing.T, k model.Kind, p []byte, order binary.ByteOrder) {
	var err error
	switch k {
	case model.KindWriteReg:
		_, err = model.DecodeWriteReg(p, order)
	case model.KindReadReg:
		_, err = model.DecodeReadReg(p, order)
	case model.KindReadBuffer:
		_, err = model.DecodeReadBuffer(p, order)
	case model.KindReadRepeat:
		_, err = model.DecodeReadRepeat(p, order)
	case model.KindFlankServo:
		_, err = model.DecodeFlankServo(p, order)
	case model.KindWriteFile:
		_, err = model.DecodeWriteFile(p, order)
	case model.KindReadFile:
		_, err = model.DecodeReadFile(p, order)
	case model.KindShellCommand:
		_, err = model.DecodeShellCommand(p, order)
	}
	if err != nil {
		t.Fatalf("%s recognized but not decodable: %v", k, err)
	}
}
