package mmio

import (
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// Options configures a memory-mapped board.
type Options struct {
	// MemPath is the physical memory device, usually /dev/mem.
	MemPath string
	// CSRDataWidth is the number of bits per CSR word.
	CSRDataWidth int
	// EthmacRegion names the memory region of the MAC packet SRAM.
	EthmacRegion string
	// DMARegion names the memory region reserved for DMA buffers.
	DMARegion string
}

// DefaultOptions returns the options matching the stock gateware.
func DefaultOptions() Options {
	return Options{
		MemPath:      "/dev/mem",
		CSRDataWidth: 32,
		EthmacRegion: "ethmac",
		DMARegion:    "analyzer_dma",
	}
}

// RequiredRegisters lists the registers used by the runtime.
var RequiredRegisters = []hw.Register{
	hw.AnalyzerOverflowReset,
	hw.AnalyzerOverflow,
	hw.AnalyzerDMABase,
	hw.AnalyzerDMALast,
	hw.AnalyzerDMAReset,
	hw.AnalyzerDMAByteCount,
	hw.AnalyzerEnable,
	hw.AnalyzerBusy,
	hw.EthRxPending,
	hw.EthRxSlot,
	hw.EthRxLength,
	hw.EthTxReady,
	hw.EthTxSlot,
	hw.EthTxLength,
	hw.EthTxStart,
}

// Board implements hw.Board on mapped physical memory.
//
// The memory is mapped with O_SYNC, which makes it uncached: the cache
// flushes are no-ops.
type Board struct {
	*Bus
	*RegionArena

	Map *Map

	fd       int
	mappings [][]byte
	ethmac   []byte
}

var _ hw.Board = (*Board)(nil)

// Open maps the CSR window and the memory regions described by csrMap.
func Open(csrMap *Map, opts Options) (*Board, error) {
	fd, err := unix.Open(opts.MemPath, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: opts.MemPath, Err: err}
	}
	b := &Board{Map: csrMap, fd: fd}

	lo, hi := csrWindow(csrMap)
	if hi <= lo {
		b.Close()
		return nil, fmt.Errorf("no CSR in map")
	}
	csrMem, err := b.mmap(lo, int(hi-lo))
	if err != nil {
		b.Close()
		return nil, err
	}
	if b.Bus, err = NewBus(csrMap, csrMem, lo, opts.CSRDataWidth); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.Bus.Require(RequiredRegisters...); err != nil {
		b.Close()
		return nil, err
	}

	ethmac, ok := csrMap.Regions[opts.EthmacRegion]
	if !ok {
		b.Close()
		return nil, fmt.Errorf("memory region %s not found", opts.EthmacRegion)
	}
	if b.ethmac, err = b.mmapRegion(ethmac); err != nil {
		b.Close()
		return nil, err
	}

	dma, ok := csrMap.Regions[opts.DMARegion]
	if !ok {
		b.Close()
		return nil, fmt.Errorf("memory region %s not found", opts.DMARegion)
	}
	dmaMem, err := b.mmapRegion(dma)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.RegionArena = NewRegionArena(dmaMem, dma.Addr)

	glog.Infof("board: csr 0x%x-0x%x, %s at 0x%x, %s at 0x%x (%d bytes)",
		lo, hi, ethmac.Name, ethmac.Addr, dma.Name, dma.Addr, dma.Size)
	return b, nil
}

// EthmacMemory implements hw.Board.
func (b *Board) EthmacMemory() []byte {
	return b.ethmac
}

// Constant returns a numeric gateware constant from the CSR map.
func (b *Board) Constant(name string) (uint64, bool) {
	return b.Map.Constant(name)
}

// FlushCPUDCache implements hw.Cache.
func (b *Board) FlushCPUDCache() {}

// FlushL2Cache implements hw.Cache.
func (b *Board) FlushL2Cache() {}

// Close unmaps the memory.
func (b *Board) Close() error {
	var firstErr error
	for _, mem := range b.mappings {
		if err := unix.Munmap(mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.mappings = nil
	if b.fd >= 0 {
		if err := unix.Close(b.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		b.fd = -1
	}
	return firstErr
}

func (b *Board) mmapRegion(r Region) ([]byte, error) {
	return b.mmap(r.Addr, r.Size)
}

// mmap maps [addr, addr+size) and returns exactly that range; the mapping
// itself starts at the enclosing page.
func (b *Board) mmap(addr uint64, size int) ([]byte, error) {
	pageSize := uint64(unix.Getpagesize())
	start := addr &^ (pageSize - 1)
	length := int(addr-start) + size
	mem, err := unix.Mmap(b.fd, int64(start), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap 0x%x+%d: %w", addr, size, err)
	}
	b.mappings = append(b.mappings, mem)
	off := addr - start
	return mem[off : off+uint64(size) : off+uint64(size)], nil
}

func csrWindow(m *Map) (lo, hi uint64) {
	first := true
	for _, csr := range m.Registers {
		end := csr.Addr + uint64(csr.Size*CSRWordStride)
		if first || csr.Addr < lo {
			lo = csr.Addr
		}
		if first || end > hi {
			hi = end
		}
		first = false
	}
	return lo, hi
}

// RegionArena allocates DMA buffers from a reserved physical region.
// Allocations are never freed.
type RegionArena struct {
	lock sync.Mutex
	mem  []byte
	addr uint64
	off  int
}

// NewRegionArena creates an arena over mem located at physical address
// addr.
func NewRegionArena(mem []byte, addr uint64) *RegionArena {
	return &RegionArena{mem: mem, addr: addr}
}

// Alloc implements hw.Arena.
func (a *RegionArena) Alloc(size, align int) ([]byte, uint64, error) {
	if size <= 0 || align <= 0 || align&(align-1) != 0 {
		return nil, 0, fmt.Errorf("invalid allocation size %d align %d", size, align)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	addr := (a.addr + uint64(a.off) + uint64(align) - 1) &^ (uint64(align) - 1)
	start := int(addr - a.addr)
	if start+size > len(a.mem) {
		return nil, 0, fmt.Errorf("DMA region exhausted: %d bytes requested, %d available",
			size, len(a.mem)-a.off)
	}
	a.off = start + size
	return a.mem[start : start+size : start+size], addr, nil
}
