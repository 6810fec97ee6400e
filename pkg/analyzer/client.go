package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
)

// Dump is a decoded analyzer dump.
type Dump struct {
	Header Header
	Data   []byte
}

// maxDataPrealloc bounds the memory reserved before the data arrives.
const maxDataPrealloc = 1 << 20

// ReadDump decodes a dump: the header followed by SentBytes bytes.
func ReadDump(r io.Reader) (*Dump, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if uint64(hdr.SentBytes) > hdr.TotalByteCount {
		return nil, fmt.Errorf("invalid header: %d bytes sent of %d captured", hdr.SentBytes, hdr.TotalByteCount)
	}
	data := bytes.NewBuffer(make([]byte, 0, min(int(hdr.SentBytes), maxDataPrealloc)))
	if _, err := io.CopyN(data, r, int64(hdr.SentBytes)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read data: %w", err)
	}
	return &Dump{Header: hdr, Data: data.Bytes()}, nil
}

// WriteTo writes the dump in wire format.
func (d *Dump) WriteTo(w io.Writer) (int64, error) {
	n, err := d.Header.WriteTo(w)
	if err != nil {
		return n, err
	}
	m, err := w.Write(d.Data)
	return n + int64(m), err
}

// Fetch connects to the analyzer at host (default port if not specified)
// and reads one dump.
func Fetch(ctx context.Context, host string) (*Dump, error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return ReadDump(conn)
}
