package ethmac

import "fmt"

// Slot selects one of the two packet buffers of a direction.
type Slot uint8

// Slots.
const (
	Slot0 Slot = iota
	Slot1
)

// SlotError indicates the hardware reported an index naming no slot.
type SlotError struct {
	Index uint64
}

// Error implements error.
func (e *SlotError) Error() string {
	return fmt.Sprintf("invalid slot index %d", e.Index)
}

// ParseSlot converts a hardware slot index.
func ParseSlot(index uint64) (Slot, error) {
	switch index {
	case 0:
		return Slot0, nil
	case 1:
		return Slot1, nil
	}
	return Slot0, &SlotError{Index: index}
}

// Next returns the other slot.
func (s Slot) Next() Slot {
	switch s {
	case Slot0:
		return Slot1
	case Slot1:
		return Slot0
	}
	panic(fmt.Sprintf("invalid slot %d", s))
}

// Index returns the hardware index of the slot.
func (s Slot) Index() uint64 {
	return uint64(s)
}

// String implements fmt.Stringer.
func (s Slot) String() string {
	return fmt.Sprintf("slot%d", s)
}
