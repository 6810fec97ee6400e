package analyzer

// Snapshot computes the header and the payload segments of a dump of the
// ring buffer data after totalByteCount bytes were captured.
//
// Once the capture wrapped around, the oldest byte sits at the write
// pointer, so the payload is data[pointer:] followed by data[:pointer].
// Otherwise only the written part data[:totalByteCount] is sent.
func Snapshot(data []byte, totalByteCount uint64, overflow bool, logChannel uint8) (Header, [][]byte) {
	size := uint64(len(data))
	hdr := Header{
		TotalByteCount:   totalByteCount,
		OverflowOccurred: overflow,
		LogChannel:       logChannel,
		CompatFlag:       true,
	}
	if size == 0 {
		return hdr, nil
	}
	pointer := totalByteCount % size
	if totalByteCount >= size {
		hdr.SentBytes = uint32(size)
		return hdr, [][]byte{data[pointer:], data[:pointer]}
	}
	hdr.SentBytes = uint32(totalByteCount)
	return hdr, [][]byte{data[:pointer]}
}
