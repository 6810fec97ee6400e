package analyzer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 8 + 4 + 1 + 1 + 1

// Header precedes every dump on the wire.
//
// Layout (big-endian):
//
//	u64 total byte count since arm
//	u32 number of payload bytes following the header
//	u8  overflow occurred
//	u8  log channel
//	u8  compatibility flag, always 1
type Header struct {
	TotalByteCount   uint64
	SentBytes        uint32
	OverflowOccurred bool
	LogChannel       uint8
	CompatFlag       bool
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("Header{total=%d sent=%d overflow=%v log_channel=%d compat=%v}",
		h.TotalByteCount, h.SentBytes, h.OverflowOccurred, h.LogChannel, h.CompatFlag)
}

// Bytes returns encoded bytes for sending.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(b[0:], h.TotalByteCount)
	binary.BigEndian.PutUint32(b[8:], h.SentBytes)
	b[12] = boolByte(h.OverflowOccurred)
	b[13] = h.LogChannel
	b[14] = boolByte(h.CompatFlag)
	return b
}

// WriteTo writes encoded bytes.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(h.Bytes())
	return int64(n), err
}

// ReadHeader decodes a Header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Header{}, err
	}
	return Header{
		TotalByteCount:   binary.BigEndian.Uint64(b[0:]),
		SentBytes:        binary.BigEndian.Uint32(b[8:]),
		OverflowOccurred: b[12] != 0,
		LogChannel:       b[13],
		CompatFlag:       b[14] != 0,
	}, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
