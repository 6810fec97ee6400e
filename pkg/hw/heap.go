package hw

import (
	"fmt"
	"unsafe"
)

// HeapArena allocates DMA memory from the Go heap. Bus addresses are the
// virtual addresses of the allocations, which is what simulated hardware
// and identity-mapped systems expect.
type HeapArena struct{}

// Alloc implements Arena.
func (HeapArena) Alloc(size, align int) ([]byte, uint64, error) {
	if size <= 0 {
		return nil, 0, fmt.Errorf("invalid allocation size %d", size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, 0, fmt.Errorf("invalid alignment %d", align)
	}
	raw := make([]byte, size+align-1)
	base := uintptr(unsafe.Pointer(&raw[0]))
	off := int((uintptr(align) - base%uintptr(align)) % uintptr(align))
	mem := raw[off : off+size : off+size]
	return mem, uint64(base) + uint64(off), nil
}

// AddrOf returns the address of the first byte of mem.
func AddrOf(mem []byte) uint64 {
	if len(mem) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&mem[0])))
}
