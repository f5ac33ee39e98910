package blockstore_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akutuzov/sfvfs/blockstore"
)

func open(t *testing.T, opts blockstore.Options) *blockstore.BlockStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.sfvfs")
	s, err := blockstore.Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestFreshContainerAllocateDeallocate is spec §8 scenario 1.
func TestFreshContainerAllocateDeallocate(t *testing.T) {
	s := open(t, blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024})

	blk, err := s.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 64, s.TotalBlocks())
	free, err := s.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 62, free)

	require.NoError(t, s.Deallocate(blk.Address()))
	free, err = s.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 63, free)
}

// TestGrowth is spec §8 scenario 2.
func TestGrowth(t *testing.T) {
	s := open(t, blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024})

	addrs := make([]int32, 0, 100)
	for i := 0; i < 100; i++ {
		blk, err := s.Allocate()
		require.NoError(t, err)
		addrs = append(addrs, blk.Address())
	}
	require.EqualValues(t, 128, s.TotalBlocks())
	free, err := s.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 26, free)

	for _, a := range addrs {
		require.NoError(t, s.Deallocate(a))
	}
	free, err = s.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 126, free)

	for i := 0; i < 128; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}
	require.EqualValues(t, 192, s.TotalBlocks())
	free, err = s.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 61, free)
}

// TestReopenPersistsMappings is spec §8 scenario 3.
func TestReopenPersistsMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container.sfvfs")
	opts := blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024}

	s, err := blockstore.Open(path, opts)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s2, err := blockstore.Open(path, opts)
	require.NoError(t, err)
	defer s2.Close()
	require.EqualValues(t, 128, s2.TotalBlocks())
	free, err := s2.FreeBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 26, free)
}

// TestShortWriteLeavesRemainderUntouched is spec §8 scenario 4, exercised
// directly at the block level (the inode package has its own end-to-end
// version).
func TestShortWriteLeavesRemainderUntouched(t *testing.T) {
	s := open(t, blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024})
	blk, err := s.Allocate()
	require.NoError(t, err)

	full := make([]byte, 64)
	for i := range full {
		full[i] = 0xFF
	}
	require.NoError(t, blk.Write(full))

	require.NoError(t, blk.Write([]byte{1, 2, 3, 4}))
	raw, err := blk.Read()
	require.NoError(t, err)
	require.Len(t, raw, 64)
	require.Equal(t, []byte{1, 2, 3, 4}, raw[:4])
	require.Equal(t, full[4:], raw[4:])
}

// TestStaleHandleAfterCompact exercises the mapping-version handle
// invalidation contract.
func TestStaleHandleAfterCompact(t *testing.T) {
	s := open(t, blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024})
	blk, err := s.Allocate()
	require.NoError(t, err)

	require.NoError(t, s.Compact())

	_, err = blk.Read()
	require.Error(t, err)
}

// TestCompactionPreservesData is spec §8 scenario 5.
func TestCompactionPreservesData(t *testing.T) {
	s := open(t, blockstore.Options{BlockSize: 64, MaxBlocks: 64 * 1024})

	rng := rand.New(rand.NewSource(42))

	type entry struct {
		addr int32
		val  int32
	}
	var live []entry
	var writtenSum, removedSum int64

	for i := 0; i < 1000; i++ {
		blk, err := s.Allocate()
		require.NoError(t, err)
		v := rng.Int31()
		require.NoError(t, blk.WriteInt(0, v))
		writtenSum += int64(v)
		live = append(live, entry{addr: blk.Address(), val: v})
	}

	kept := live[:0]
	for _, e := range live {
		if rng.Intn(2) == 0 {
			require.NoError(t, s.Deallocate(e.addr))
			removedSum += int64(e.val)
		} else {
			kept = append(kept, e)
		}
	}
	live = kept

	require.NoError(t, s.Compact())

	var readSum int64
	for _, e := range live {
		blk, err := s.Get(e.addr)
		require.NoError(t, err)
		v, err := blk.ReadInt(0)
		require.NoError(t, err)
		readSum += int64(v)
	}
	require.Equal(t, writtenSum-removedSum, readSum)

	free, err := s.FreeBlocks()
	require.NoError(t, err)
	require.Less(t, free, int32(64))
}
