package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// CSRWordStride is the address space used by one CSR word.
const CSRWordStride = 4

// RegisterError indicates a register missing from the CSR map or out of
// the mapped window.
type RegisterError struct {
	Name hw.Register
}

// Error implements error.
func (e *RegisterError) Error() string {
	return fmt.Sprintf("register %s not available", e.Name)
}

// Bus implements hw.Registers over a mapped CSR window.
// A register of Size words is stored most significant word first, each
// word holding DataWidth bits in a 32-bit location.
type Bus struct {
	csrs      map[string]CSR
	mem       []byte
	base      uint64
	dataWidth int

	// stored observes every word store, in order.
	stored func(off uint64, word uint32)
}

// NewBus creates a Bus over mem, the mapping of physical address base.
func NewBus(m *Map, mem []byte, base uint64, dataWidth int) (*Bus, error) {
	switch dataWidth {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("unsupported CSR data width %d", dataWidth)
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(mem)))%CSRWordStride != 0 {
		return nil, fmt.Errorf("CSR window not aligned")
	}
	return &Bus{csrs: m.Registers, mem: mem, base: base, dataWidth: dataWidth}, nil
}

// Require checks all regs are mapped.
func (b *Bus) Require(regs ...hw.Register) error {
	for _, r := range regs {
		if _, err := b.lookup(r); err != nil {
			return err
		}
	}
	return nil
}

// Read implements hw.Registers. It panics on an unknown register;
// use Require to check them upfront.
func (b *Bus) Read(r hw.Register) uint64 {
	csr, err := b.lookup(r)
	if err != nil {
		panic(err)
	}
	mask := uint64(1)<<b.dataWidth - 1
	var v uint64
	for i := 0; i < csr.Size; i++ {
		v = v<<b.dataWidth | uint64(atomic.LoadUint32(b.word(csr, i)))&mask
	}
	return v
}

// Write implements hw.Registers. It panics on an unknown register.
func (b *Bus) Write(r hw.Register, v uint64) {
	csr, err := b.lookup(r)
	if err != nil {
		panic(err)
	}
	// the CSR commits when its last (least significant) word is written
	mask := uint64(1)<<b.dataWidth - 1
	for i := 0; i < csr.Size; i++ {
		word := uint32(v >> ((csr.Size - 1 - i) * b.dataWidth) & mask)
		atomic.StoreUint32(b.word(csr, i), word)
		if b.stored != nil {
			b.stored(csr.Addr+uint64(i*CSRWordStride), word)
		}
	}
}

func (b *Bus) lookup(r hw.Register) (CSR, error) {
	csr, ok := b.csrs[string(r)]
	if !ok || csr.Addr < b.base {
		return CSR{}, &RegisterError{Name: r}
	}
	end := csr.Addr - b.base + uint64(csr.Size*CSRWordStride)
	if end > uint64(len(b.mem)) {
		return CSR{}, &RegisterError{Name: r}
	}
	return csr, nil
}

func (b *Bus) word(csr CSR, i int) *uint32 {
	off := csr.Addr - b.base + uint64(i*CSRWordStride)
	return (*uint32)(unsafe.Pointer(&b.mem[off]))
}
