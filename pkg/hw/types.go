// Package hw defines the hardware register interface consumed by the runtime.
//
// The runtime never touches hardware directly: every register access goes
// through Registers, every DMA-visible allocation through Arena and every
// cache maintenance operation through Cache. A Board bundles them together
// with the Ethernet MAC packet memory.
package hw

// Register names a memory-mapped control/status register.
// Names follow the gateware CSR naming (<core>_<register>).
type Register string

// Registers provides access to named registers.
//
// Registers acting on write ("reset", "start", "ev_pending") perform their
// action when 1 is written; status registers reflect the hardware state
// on read.
type Registers interface {
	Read(Register) uint64
	Write(Register, uint64)
}

// Cache provides cache maintenance required around DMA transfers.
// DMA engines bypass the CPU caches so software must flush them before
// reading memory written by hardware.
type Cache interface {
	FlushCPUDCache()
	FlushL2Cache()
}

// Arena allocates memory shared with DMA engines.
type Arena interface {
	// Alloc allocates size bytes aligned to align and returns the
	// memory together with the bus address hardware uses to reach it.
	Alloc(size, align int) (mem []byte, addr uint64, err error)
}

// Board is the complete hardware surface used by the runtime.
type Board interface {
	Registers
	Cache
	Arena
	// EthmacMemory returns the packet SRAM of the Ethernet MAC:
	// two receive slots followed by two transmit slots.
	EthmacMemory() []byte
}
