package sim

import (
	"fmt"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// Deliver emulates the MAC receiving a frame from the wire: the frame is
// written to the next receive slot and the event is raised.
func (b *Board) Deliver(frame []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.eth.rxPending {
		return ErrRxOccupied
	}
	if len(frame) > hw.EthmacSlotSize {
		return fmt.Errorf("frame too large: %d", len(frame))
	}
	slot := b.eth.rxNext
	b.eth.rxNext = (slot + 1) % hw.EthmacSlots
	copy(b.rxRegion(slot), frame)
	b.eth.rxSlot = slot
	b.eth.rxLength = uint64(len(frame))
	b.eth.rxPending = true
	return nil
}

// RxPending reports whether a receive event awaits acknowledgement.
func (b *Board) RxPending() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.eth.rxPending
}

// SetTxReady sets the transmitter ready flag.
func (b *Board) SetTxReady(ready bool) {
	b.lock.Lock()
	b.eth.txReady = ready
	b.lock.Unlock()
}

// TxStarts returns the number of start commands received.
func (b *Board) TxStarts() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.eth.txStarts
}

// TxFrames returns the frames sent so far.
func (b *Board) TxFrames() [][]byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([][]byte(nil), b.eth.txFrames...)
}

// TakeTxFrames returns and forgets the frames sent so far.
func (b *Board) TakeTxFrames() [][]byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	frames := b.eth.txFrames
	b.eth.txFrames = nil
	return frames
}

func (b *Board) rxRegion(slot uint64) []byte {
	off := slot * hw.EthmacSlotSize
	return b.eth.mem[off : off+hw.EthmacSlotSize]
}

func (b *Board) txRegion(slot uint64) []byte {
	off := (hw.EthmacSlots + slot%hw.EthmacSlots) * hw.EthmacSlotSize
	return b.eth.mem[off : off+hw.EthmacSlotSize]
}
