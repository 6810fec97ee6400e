// Package ethmac exchanges frames with the Ethernet MAC packet memory
// without copying.
//
// The MAC owns two receive and two transmit slots. A received frame stays
// in its slot and is handed out as an RxView; a frame to send is written
// in place through a TxBuffer, and releasing the TxBuffer starts the
// transmission.
package ethmac

import (
	"errors"
	"fmt"

	"github.com/robotalks/rtio.go/pkg/hw"
)

// MTU is the maximum transmission unit of the interface.
const MTU = 1500

var (
	// ErrNoData indicates no frame was received since the last Receive.
	ErrNoData = errors.New("no data")
	// ErrBusy indicates the transmitter cannot accept a frame now.
	ErrBusy = errors.New("device busy")
)

// Driver is the device surface consumed by a network stack.
type Driver interface {
	MTU() int
	// Receive returns the pending received frame, or ErrNoData.
	Receive() (RxView, error)
	// Transmit claims a transmit buffer of length bytes, or ErrBusy.
	Transmit(length int) (*TxBuffer, error)
}

// RxView is a read-only view of a received frame in its slot.
// It is only valid until the next Receive: once acknowledged, the slot may
// be refilled by the hardware at any time.
type RxView struct {
	slot Slot
	data []byte
}

// Bytes returns the frame. Callers must not modify it.
func (v RxView) Bytes() []byte {
	return v.data
}

// Len returns the frame length.
func (v RxView) Len() int {
	return len(v.data)
}

// Slot returns the slot holding the frame.
func (v RxView) Slot() Slot {
	return v.slot
}

// TxBuffer is an exclusive claim on a transmit slot.
// Release starts the transmission and must be called exactly once on every
// path, typically with defer right after Transmit succeeded.
type TxBuffer struct {
	slot     Slot
	data     []byte
	regs     hw.Registers
	hooks    []func([]byte)
	released bool
}

// Bytes returns the buffer to fill.
func (b *TxBuffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer length.
func (b *TxBuffer) Len() int {
	return len(b.data)
}

// Slot returns the claimed slot.
func (b *TxBuffer) Slot() Slot {
	return b.slot
}

// OnRelease registers fn to be called with the frame right before the
// transmission starts.
func (b *TxBuffer) OnRelease(fn func([]byte)) {
	b.hooks = append(b.hooks, fn)
}

// Release starts the transmission. Subsequent calls do nothing.
func (b *TxBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	for _, fn := range b.hooks {
		fn(b.data)
	}
	b.regs.Write(hw.EthTxStart, 1)
}

// Released indicates Release was called.
func (b *TxBuffer) Released() bool {
	return b.released
}

// Device implements Driver over the MAC registers and packet memory.
type Device struct {
	regs hw.Registers
	pool *BufferPool
}

var _ Driver = (*Device)(nil)

// NewDevice creates a Device.
func NewDevice(regs hw.Registers, pool *BufferPool) *Device {
	return &Device{regs: regs, pool: pool}
}

// NewBoardDevice creates a Device using the registers and packet memory of
// a board.
func NewBoardDevice(board hw.Board) (*Device, error) {
	pool, err := NewBufferPool(board.EthmacMemory())
	if err != nil {
		return nil, err
	}
	return NewDevice(board, pool), nil
}

// MTU implements Driver.
func (d *Device) MTU() int {
	return MTU
}

// Receive implements Driver. The receive event is acknowledged before the
// view is returned.
func (d *Device) Receive() (RxView, error) {
	if d.regs.Read(hw.EthRxPending) == 0 {
		return RxView{}, ErrNoData
	}
	index := d.regs.Read(hw.EthRxSlot)
	length := d.regs.Read(hw.EthRxLength)
	d.regs.Write(hw.EthRxPending, 1)

	slot, err := ParseSlot(index)
	if err != nil {
		return RxView{}, err
	}
	region := d.pool.RX(slot)
	if length > uint64(len(region)) {
		length = uint64(len(region))
	}
	return RxView{slot: slot, data: region[:length]}, nil
}

// Transmit implements Driver. It registers the slot and length with the
// hardware; the transmission starts when the returned buffer is released.
func (d *Device) Transmit(length int) (*TxBuffer, error) {
	if length < 0 || length > hw.EthmacSlotSize {
		return nil, fmt.Errorf("invalid frame length %d", length)
	}
	if d.regs.Read(hw.EthTxReady) == 0 {
		return nil, ErrBusy
	}
	slot := Slot((d.regs.Read(hw.EthTxSlot) + 1) % hw.EthmacSlots)
	d.regs.Write(hw.EthTxSlot, slot.Index())
	d.regs.Write(hw.EthTxLength, uint64(length))
	return &TxBuffer{
		slot: slot,
		data: d.pool.TX(slot)[:length],
		regs: d.regs,
	}, nil
}
