package sim

// Wire connects the Ethernet ports of two simulated boards. Frames sent by
// one board are delivered to the other as soon as its receive event is free.
type Wire struct {
	a, b   *Board
	toA    [][]byte
	toB    [][]byte
	Frames int
}

// NewWire connects a and b.
func NewWire(a, b *Board) *Wire {
	return &Wire{a: a, b: b}
}

// Transfer moves the frames sent since the last call and delivers at most
// one pending frame to each board. It returns the number of frames
// delivered.
func (w *Wire) Transfer() int {
	w.toB = append(w.toB, w.a.TakeTxFrames()...)
	w.toA = append(w.toA, w.b.TakeTxFrames()...)
	n := 0
	if len(w.toA) > 0 && w.a.Deliver(w.toA[0]) == nil {
		w.toA = w.toA[1:]
		n++
	}
	if len(w.toB) > 0 && w.b.Deliver(w.toB[0]) == nil {
		w.toB = w.toB[1:]
		n++
	}
	w.Frames += n
	return n
}

// Pending returns the number of frames on the wire.
func (w *Wire) Pending() int {
	return len(w.toA) + len(w.toB)
}
