package hw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeapArenaAlloc(t *testing.T) {
	for _, align := range []int{1, 8, 64, 4096} {
		mem, addr, err := HeapArena{}.Alloc(1000, align)
		require.NoError(t, err)
		require.Len(t, mem, 1000)
		require.Equal(t, 1000, cap(mem))
		require.Zero(t, addr%uint64(align), "align %d", align)
		require.Equal(t, addr, AddrOf(mem))
	}
}

func TestHeapArenaAllocInvalid(t *testing.T) {
	_, _, err := HeapArena{}.Alloc(0, 64)
	require.Error(t, err)
	_, _, err = HeapArena{}.Alloc(16, 48)
	require.Error(t, err)
}
