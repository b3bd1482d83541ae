package regs

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DevMem maps a physical register window from a memory device such as /dev/mem.
type DevMem struct {
	mu  sync.Mutex
	f   *os.File
	mem []byte
}

// OpenDevMem maps size bytes at physical address base. base must be page aligned.
func OpenDevMem(device string, base int64, size uint32) (*DevMem, error) {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open register device")
	}

	mem, err := unix.Mmap(int(f.Fd()), base, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s at 0x%x", device, base)
	}

	return &DevMem{f: f, mem: mem}, nil
}

// Size is zero once closed, so every access fails with ErrInvalidAddress.
func (d *DevMem) Size() uint32 {
	return uint32(len(d.mem))
}

func (d *DevMem) word(addr uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&d.mem[addr]))
}

func (d *DevMem) ReadReg(addr uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := check(addr, 1, d.Size()); err != nil {
		return 0, err
	}
	return atomic.LoadUint32(d.word(addr)), nil
}

func (d *DevMem) WriteReg(addr, value uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := check(addr, 1, d.Size()); err != nil {
		return err
	}
	atomic.StoreUint32(d.word(addr), value)
	return nil
}

func (d *DevMem) ReadBlock(addr uint32, dst []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := check(addr, len(dst), d.Size()); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = atomic.LoadUint32(d.word(addr + uint32(i)*4))
	}
	return nil
}

func (d *DevMem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := unix.Munmap(d.mem)
	d.mem = nil
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}
