package model

import (
	"encoding/binary"
	"errors"
	"strings"
)

// Magic bytes
const (
	MagicWriteReg      uint32 = 0xABCD1233
	MagicReadReg       uint32 = 0xABCD1234
	MagicReadBuffer    uint32 = 0xABCD1235
	MagicFlankServo    uint32 = 0xABCD1236
	MagicWriteFile     uint32 = 0xABCD1237
	MagicShellCommand  uint32 = 0xABCD1238
	MagicRebootMonitor uint32 = 0xABCD1239
	MagicReadRepeat    uint32 = 0xABCD123A
	MagicReadFile      uint32 = 0xABCD123B // same header as WriteFile
)

// TagLen is the size of the magic bytes at the start of every packet.
const TagLen = 4

// Kind is the closed set of packet kinds the monitor understands.
type Kind uint8

const (
	KindNone Kind = iota
	KindWriteReg
	KindReadReg
	KindReadBuffer
	KindFlankServo
	KindWriteFile
	KindShellCommand
	KindRebootMonitor
	KindReadRepeat
	KindReadFile
)

type kindInfo struct {
	name      string
	magic     uint32
	headerLen int

	// offsets of u32 fields in the header that add up to the trailing payload length
	trailing []int
}

var catalog = [...]kindInfo{
	KindNone:          {name: "none"},
	KindWriteReg:      {name: "write_reg", magic: MagicWriteReg, headerLen: 12},
	KindReadReg:       {name: "read_reg", magic: MagicReadReg, headerLen: 12},
	KindReadBuffer:    {name: "read_buffer", magic: MagicReadBuffer, headerLen: 12},
	KindFlankServo:    {name: "flank_servo", magic: MagicFlankServo, headerLen: 30},
	KindWriteFile:     {name: "write_file", magic: MagicWriteFile, headerLen: 12, trailing: []int{4, 8}},
	KindShellCommand:  {name: "shell_command", magic: MagicShellCommand, headerLen: 12, trailing: []int{4}},
	KindRebootMonitor: {name: "reboot_monitor", magic: MagicRebootMonitor, headerLen: 12},
	KindReadRepeat:    {name: "read_repeat", magic: MagicReadRepeat, headerLen: 12},
	KindReadFile:      {name: "read_file", magic: MagicReadFile, headerLen: 12, trailing: []int{4}},
}

var magicToKind = func() map[uint32]Kind {
	m := make(map[uint32]Kind, len(catalog))
	for k := KindWriteReg; int(k) < len(catalog); k++ {
		m[catalog[k].magic] = k
	}
	return m
}()

// Lookup returns the packet kind for a magic tag. Unknown tags report false.
func Lookup(tag uint32) (Kind, bool) {
	k, ok := magicToKind[tag]
	return k, ok
}

// Kinds lists every known packet kind in tag order.
func Kinds() []Kind {
	ks := make([]Kind, 0, len(catalog)-1)
	for k := KindWriteReg; int(k) < len(catalog); k++ {
		ks = append(ks, k)
	}
	return ks
}

func (k Kind) valid() bool {
	return k > KindNone && int(k) < len(catalog)
}

func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return catalog[k].name
}

// Magic returns the magic bytes identifying this kind on the wire.
func (k Kind) Magic() uint32 {
	if !k.valid() {
		return 0
	}
	return catalog[k].magic
}

// HeaderLen is the fixed header size in bytes, magic bytes included.
func (k Kind) HeaderLen() int {
	if !k.valid() {
		return 0
	}
	return catalog[k].headerLen
}

// HasTrailing reports whether the kind carries a variable length payload after its header.
func (k Kind) HasTrailing() bool {
	return k.valid() && len(catalog[k].trailing) > 0
}

// TrailingLen returns the declared trailing payload length in bytes.
// header must hold at least HeaderLen bytes.
func (k Kind) TrailingLen(header []byte, order binary.ByteOrder) uint64 {
	if !k.valid() {
		return 0
	}
	var n uint64
	for _, off := range catalog[k].trailing {
		n += uint64(order.Uint32(header[off:]))
	}
	return n
}

// MagicTag reads the magic bytes at the start of b without consuming anything.
// It reports false while fewer than 4 bytes are available.
func MagicTag(b []byte, order binary.ByteOrder) (uint32, bool) {
	if len(b) < TagLen {
		return 0, false
	}
	return order.Uint32(b), true
}

// ParseByteOrder maps a config value to a byte order.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "little", "le", "little-endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian":
		return binary.BigEndian, nil
	default:
		return nil, errors.New("unknown byte order: " + s)
	}
}
