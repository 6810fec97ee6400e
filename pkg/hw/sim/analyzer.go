package sim

// Capture emulates the analyzer DMA engine appending data to the capture
// buffer programmed through the base/last address registers. Nothing is
// written unless the analyzer is enabled. It returns the number of bytes
// written.
func (b *Board) Capture(data []byte) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.analyzer.enabled {
		return 0
	}
	buf := b.dmaBuffer()
	if len(buf) == 0 {
		return 0
	}
	size := uint64(len(buf))
	for _, d := range data {
		buf[b.analyzer.byteCount%size] = d
		b.analyzer.byteCount++
	}
	return len(data)
}

// SetOverflow sets the message encoder overflow flag.
func (b *Board) SetOverflow(overflow bool) {
	b.lock.Lock()
	b.analyzer.overflow = overflow
	b.lock.Unlock()
}

// SetByteCount forces the DMA byte counter, e.g. to emulate a long capture.
func (b *Board) SetByteCount(n uint64) {
	b.lock.Lock()
	b.analyzer.byteCount = n
	b.lock.Unlock()
}

// AnalyzerEnabled reports whether the analyzer is armed.
func (b *Board) AnalyzerEnabled() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.analyzer.enabled
}

func (b *Board) dmaBuffer() []byte {
	mem, ok := b.allocs[b.analyzer.base]
	if !ok || b.analyzer.last < b.analyzer.base {
		return nil
	}
	size := b.analyzer.last - b.analyzer.base + 1
	if size > uint64(len(mem)) {
		size = uint64(len(mem))
	}
	return mem[:size]
}
