package ethmac

import (
	"fmt"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// BufferPool maps slots to the fixed regions of the MAC packet memory.
type BufferPool struct {
	rx0, rx1 []byte
	tx0, tx1 []byte
}

// NewBufferPool splits mem (see hw.EthmacMemorySize) into the receive
// and transmit regions.
func NewBufferPool(mem []byte) (*BufferPool, error) {
	if len(mem) < hw.EthmacMemorySize {
		return nil, fmt.Errorf("ethmac memory too small: %d < %d", len(mem), hw.EthmacMemorySize)
	}
	region := func(n int) []byte {
		off := n * hw.EthmacSlotSize
		return mem[off : off+hw.EthmacSlotSize : off+hw.EthmacSlotSize]
	}
	return &BufferPool{
		rx0: region(0),
		rx1: region(1),
		tx0: region(2),
		tx1: region(3),
	}, nil
}

// RX returns the receive region of slot s.
func (p *BufferPool) RX(s Slot) []byte {
	switch s {
	case Slot0:
		return p.rx0
	case Slot1:
		return p.rx1
	}
	panic(fmt.Sprintf("invalid slot %d", s))
}

// TX returns the transmit region of slot s.
func (p *BufferPool) TX(s Slot) []byte {
	switch s {
	case Slot0:
		return p.tx0
	case Slot1:
		return p.tx1
	}
	panic(fmt.Sprintf("invalid slot %d", s))
}
