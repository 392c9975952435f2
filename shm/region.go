package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// A Region is a block of memory visible to both ends of a channel.
type Region interface {
	// Bytes returns the whole region, header included.
	Bytes() []byte

	// Close releases the region. The creator also removes the backing
	// object.
	Close() error
}

const (
	headerMagic   uint32 = 0x4c544357
	layoutVersion uint32 = 1

	offMagic            = 0
	offVersion          = 4
	offSimToControlSize = 8
	offControlToSimSize = 12
	offFinished         = 16
	offAddressing       = 20
	offSimToControlFull = 24
	offSimToControlTok  = 28
	offControlToSimFull = 32
	offControlToSimTok  = 36
	headerSize          = 40
)

// Layout describes the slot sizes of a region.
type Layout struct {
	SimToControlSize int
	ControlToSimSize int

	// Addressing identifies the channel names, see Config.
	Addressing uint32
}

// Size returns the number of bytes a region with this layout needs.
func (l Layout) Size() int {
	return headerSize + align8(l.SimToControlSize) + align8(l.ControlToSimSize)
}

func (l Layout) simToControlSlot() (int, int) {
	return headerSize, l.SimToControlSize
}

func (l Layout) controlToSimSlot() (int, int) {
	return headerSize + align8(l.SimToControlSize), l.ControlToSimSize
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func word(mem []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

// initHeader writes the header of a fresh region. The magic number is stored
// last so that an attaching peer never sees a half-written header.
func initHeader(mem []byte, l Layout) {
	for i := 0; i < headerSize; i += 4 {
		atomic.StoreUint32(word(mem, i), 0)
	}

	atomic.StoreUint32(word(mem, offVersion), layoutVersion)
	atomic.StoreUint32(word(mem, offSimToControlSize), uint32(l.SimToControlSize))
	atomic.StoreUint32(word(mem, offControlToSimSize), uint32(l.ControlToSimSize))
	atomic.StoreUint32(word(mem, offAddressing), l.Addressing)
	atomic.StoreUint32(word(mem, offMagic), headerMagic)
}

func headerReady(mem []byte) bool {
	return len(mem) >= headerSize &&
		atomic.LoadUint32(word(mem, offMagic)) == headerMagic
}

func checkHeader(mem []byte, l Layout) error {
	if len(mem) < l.Size() {
		return fmt.Errorf("%w: region has %d bytes, need %d",
			ErrLayoutMismatch, len(mem), l.Size())
	}

	if !headerReady(mem) {
		return fmt.Errorf("%w: header not initialized", ErrLayoutMismatch)
	}

	if v := atomic.LoadUint32(word(mem, offVersion)); v != layoutVersion {
		return fmt.Errorf("%w: layout version %d, want %d",
			ErrLayoutMismatch, v, layoutVersion)
	}

	s2c := int(atomic.LoadUint32(word(mem, offSimToControlSize)))
	c2s := int(atomic.LoadUint32(word(mem, offControlToSimSize)))
	if s2c != l.SimToControlSize || c2s != l.ControlToSimSize {
		return fmt.Errorf("%w: slots are %d/%d bytes, want %d/%d",
			ErrLayoutMismatch, s2c, c2s, l.SimToControlSize, l.ControlToSimSize)
	}

	if a := atomic.LoadUint32(word(mem, offAddressing)); a != l.Addressing {
		return fmt.Errorf("%w: channel names differ", ErrLayoutMismatch)
	}

	return nil
}

type memoryRegion struct {
	words []uint64
	mem   []byte
}

// NewMemoryRegion creates a region in the memory of the current process. Both
// endpoints must then live in this process, typically on two goroutines.
func NewMemoryRegion(l Layout) Region {
	words := make([]uint64, l.Size()/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)

	initHeader(mem, l)

	return &memoryRegion{words: words, mem: mem}
}

func (r *memoryRegion) Bytes() []byte {
	return r.mem
}

func (r *memoryRegion) Close() error {
	return nil
}
