// Package regs provides register windows addressed in bytes with 32-bit words.
package regs

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrInvalidAddress = errors.New("invalid register address")

func check(addr uint32, n int, size uint32) error {
	if addr%4 != 0 {
		return errors.Wrapf(ErrInvalidAddress, "0x%x is not word aligned", addr)
	}
	if uint64(addr)+4*uint64(n) > uint64(size) {
		return errors.Wrapf(ErrInvalidAddress, "0x%x+%d words exceeds window of 0x%x bytes", addr, n, size)
	}
	return nil
}

// Map is an in-memory register window. Registers never written read as zero.
type Map struct {
	mu    sync.Mutex
	words []uint32
}

// NewMap returns a window of size bytes.
func NewMap(size uint32) *Map {
	return &Map{words: make([]uint32, size/4)}
}

func (m *Map) Size() uint32 {
	return uint32(len(m.words)) * 4
}

func (m *Map) ReadReg(addr uint32) (uint32, error) {
	if err := check(addr, 1, m.Size()); err != nil {
		return 0, err
	}
	m.mu.Lock()
	v := m.words[addr/4]
	m.mu.Unlock()
	return v, nil
}

func (m *Map) WriteReg(addr, value uint32) error {
	if err := check(addr, 1, m.Size()); err != nil {
		return err
	}
	m.mu.Lock()
	m.words[addr/4] = value
	m.mu.Unlock()
	return nil
}

// ReadBlock fills dst with consecutive words starting at addr.
func (m *Map) ReadBlock(addr uint32, dst []uint32) error {
	if err := check(addr, len(dst), m.Size()); err != nil {
		return err
	}
	m.mu.Lock()
	copy(dst, m.words[addr/4:])
	m.mu.Unlock()
	return nil
}

func (m *Map) Close() error {
	return nil
}
