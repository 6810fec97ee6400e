// Package sim provides a simulated board implementing hw.Board.
//
// The simulation models the register-level behavior of the RTIO analyzer
// DMA engine and of the Ethernet MAC SRAM so the runtime can be exercised
// without hardware.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// ErrRxOccupied is returned by Deliver when the previous frame has not been
// acknowledged yet.
var ErrRxOccupied = errors.New("rx event still pending")

// Write records a register write.
type Write struct {
	Reg   hw.Register
	Value uint64
}

// String implements fmt.Stringer.
func (w Write) String() string {
	return fmt.Sprintf("%s=%d", w.Reg, w.Value)
}

// Board is a simulated board.
type Board struct {
	// BusyReads is the number of reads of the busy register reporting
	// busy after the analyzer is disabled.
	BusyReads int

	lock   sync.Mutex
	regs   map[hw.Register]uint64
	writes []Write
	allocs map[uint64][]byte

	analyzer analyzerState
	eth      ethmacState

	cpuFlushes int
	l2Flushes  int
}

type analyzerState struct {
	enabled   bool
	overflow  bool
	byteCount uint64
	busy      int
	base      uint64
	last      uint64
}

type ethmacState struct {
	mem       []byte
	rxPending bool
	rxSlot    uint64
	rxLength  uint64
	rxNext    uint64
	txReady   bool
	txSlot    uint64
	txLength  uint64
	txFrames  [][]byte
	txStarts  int
}

var _ hw.Board = (*Board)(nil)

// NewBoard creates a simulated board. The transmitter is initially ready.
func NewBoard() *Board {
	return &Board{
		regs:   make(map[hw.Register]uint64),
		allocs: make(map[uint64][]byte),
		eth: ethmacState{
			mem:     make([]byte, hw.EthmacMemorySize),
			txReady: true,
			// so the first transmission uses slot 0.
			txSlot: hw.EthmacSlots - 1,
		},
	}
}

// Read implements hw.Registers.
func (b *Board) Read(r hw.Register) uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	switch r {
	case hw.AnalyzerOverflow:
		return boolValue(b.analyzer.overflow)
	case hw.AnalyzerDMAByteCount:
		return b.analyzer.byteCount
	case hw.AnalyzerEnable:
		return boolValue(b.analyzer.enabled)
	case hw.AnalyzerBusy:
		if b.analyzer.busy > 0 {
			b.analyzer.busy--
			return 1
		}
		return 0
	case hw.AnalyzerDMABase:
		return b.analyzer.base
	case hw.AnalyzerDMALast:
		return b.analyzer.last
	case hw.EthRxPending:
		return boolValue(b.eth.rxPending)
	case hw.EthRxSlot:
		return b.eth.rxSlot
	case hw.EthRxLength:
		return b.eth.rxLength
	case hw.EthTxReady:
		return boolValue(b.eth.txReady)
	case hw.EthTxSlot:
		return b.eth.txSlot
	case hw.EthTxLength:
		return b.eth.txLength
	}
	return b.regs[r]
}

// Write implements hw.Registers.
func (b *Board) Write(r hw.Register, v uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.writes = append(b.writes, Write{Reg: r, Value: v})
	switch r {
	case hw.AnalyzerOverflowReset:
		if v == 1 {
			b.analyzer.overflow = false
		}
	case hw.AnalyzerDMABase:
		b.analyzer.base = v
	case hw.AnalyzerDMALast:
		b.analyzer.last = v
	case hw.AnalyzerDMAReset:
		if v == 1 {
			b.analyzer.byteCount = 0
		}
	case hw.AnalyzerEnable:
		enabled := v != 0
		if b.analyzer.enabled && !enabled {
			b.analyzer.busy = b.BusyReads
		}
		b.analyzer.enabled = enabled
	case hw.EthRxPending:
		if v == 1 {
			b.eth.rxPending = false
		}
	case hw.EthTxSlot:
		b.eth.txSlot = v
	case hw.EthTxLength:
		b.eth.txLength = v
	case hw.EthTxStart:
		if v == 1 {
			b.eth.txStarts++
			region := b.txRegion(b.eth.txSlot)
			n := b.eth.txLength
			if n > uint64(len(region)) {
				n = uint64(len(region))
			}
			b.eth.txFrames = append(b.eth.txFrames, append([]byte(nil), region[:n]...))
		}
	default:
		b.regs[r] = v
	}
}

// Writes returns the register writes recorded so far.
func (b *Board) Writes() []Write {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]Write(nil), b.writes...)
}

// WritesTo returns the values written to a register, in order.
func (b *Board) WritesTo(r hw.Register) []uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	var vals []uint64
	for _, w := range b.writes {
		if w.Reg == r {
			vals = append(vals, w.Value)
		}
	}
	return vals
}

// ResetWrites clears the write log.
func (b *Board) ResetWrites() {
	b.lock.Lock()
	b.writes = nil
	b.lock.Unlock()
}

// FlushCPUDCache implements hw.Cache.
func (b *Board) FlushCPUDCache() {
	b.lock.Lock()
	b.cpuFlushes++
	b.lock.Unlock()
}

// FlushL2Cache implements hw.Cache.
func (b *Board) FlushL2Cache() {
	b.lock.Lock()
	b.l2Flushes++
	b.lock.Unlock()
}

// Flushes returns how many times CPU and L2 caches were flushed.
func (b *Board) Flushes() (cpu, l2 int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.cpuFlushes, b.l2Flushes
}

// Alloc implements hw.Arena.
func (b *Board) Alloc(size, align int) ([]byte, uint64, error) {
	mem, addr, err := hw.HeapArena{}.Alloc(size, align)
	if err != nil {
		return nil, 0, err
	}
	b.lock.Lock()
	b.allocs[addr] = mem
	b.lock.Unlock()
	return mem, addr, nil
}

// EthmacMemory implements hw.Board.
func (b *Board) EthmacMemory() []byte {
	return b.eth.mem
}

func boolValue(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
