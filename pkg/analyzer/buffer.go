package analyzer

import (
	"fmt"

	"github.com/robotalks/rtio.go/pkg/hw"
)

const (
	// BufferAlign is the alignment the capture DMA engine requires.
	BufferAlign = 64
	// DefaultBufferSize is the size of the capture ring buffer.
	DefaultBufferSize = 512 * 1024
)

// MisalignedError indicates the capture buffer violates the DMA alignment.
type MisalignedError struct {
	Addr  uint64
	Align int
}

// Error implements error.
func (e *MisalignedError) Error() string {
	return fmt.Sprintf("capture buffer at %#x is not %d-byte aligned", e.Addr, e.Align)
}

type region struct {
	data []byte
	addr uint64
}

// Owned grants software read access to the capture buffer.
// It is only valid while the capture engine is disarmed: arming the engine
// consumes the token, after which Bytes returns nil.
type Owned struct {
	r *region
}

// Armed represents the capture buffer handed to the DMA engine.
// It exposes the bus addresses to program but never the contents.
type Armed struct {
	r *region
}

// NewCaptureBuffer allocates the capture buffer from arena and verifies
// its alignment. The buffer is initially owned by software.
func NewCaptureBuffer(arena hw.Arena, size int) (*Owned, error) {
	data, addr, err := arena.Alloc(size, BufferAlign)
	if err != nil {
		return nil, fmt.Errorf("allocate capture buffer: %w", err)
	}
	if addr%BufferAlign != 0 {
		return nil, &MisalignedError{Addr: addr, Align: BufferAlign}
	}
	return &Owned{r: &region{data: data, addr: addr}}, nil
}

// Bytes returns the buffer contents, nil if the token was handed over.
func (o *Owned) Bytes() []byte {
	if o.r == nil {
		return nil
	}
	return o.r.data
}

// Size returns the buffer capacity.
func (o *Owned) Size() int {
	if o.r == nil {
		return 0
	}
	return len(o.r.data)
}

// Valid indicates the token still grants access.
func (o *Owned) Valid() bool {
	return o.r != nil
}

func (o *Owned) handOver() *Armed {
	r := o.r
	o.r = nil
	return &Armed{r: r}
}

// Base returns the bus address of the first byte.
func (a *Armed) Base() uint64 {
	return a.r.addr
}

// Last returns the bus address of the last byte.
func (a *Armed) Last() uint64 {
	return a.r.addr + uint64(len(a.r.data)) - 1
}

// Size returns the buffer capacity.
func (a *Armed) Size() int {
	return len(a.r.data)
}

func (a *Armed) reclaim() *Owned {
	r := a.r
	a.r = nil
	return &Owned{r: r}
}
