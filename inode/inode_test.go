package inode_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/inode"
)

func open(t *testing.T, blockSize int32) *blockstore.BlockStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.sfvfs")
	s, err := blockstore.Open(path, blockstore.Options{BlockSize: blockSize, MaxBlocks: blockSize * 1024})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newInode(t *testing.T, store *blockstore.BlockStore) *inode.Inode {
	t.Helper()
	blk, err := store.Allocate()
	require.NoError(t, err)
	in, err := inode.Create(store, blk.Address())
	require.NoError(t, err)
	return in
}

// TestShortWrite is spec §8 scenario 4.
func TestShortWrite(t *testing.T) {
	store := open(t, 64)
	in := newInode(t, store)

	w, err := in.AppendStream()
	require.NoError(t, err)
	n, err := w.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, w.Close())

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4, size)
}

func TestAppendThenReadRoundTrip(t *testing.T) {
	store := open(t, 64)
	in := newInode(t, store)

	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}

	w, err := in.AppendStream()
	require.NoError(t, err)
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.Close())

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, len(payload), size)

	r, err := in.ReadStream()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, payload, got)
}

func TestAppendResumesAcrossMultipleStreams(t *testing.T) {
	store := open(t, 64)
	in := newInode(t, store)

	w1, err := in.AppendStream()
	require.NoError(t, err)
	_, err = w1.Write([]byte("hello "))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := in.AppendStream()
	require.NoError(t, err)
	_, err = w2.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	r, err := in.ReadStream()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "hello world", string(got))
}

func TestOnlyOneOpenStreamAtATime(t *testing.T) {
	store := open(t, 64)
	in := newInode(t, store)

	w, err := in.AppendStream()
	require.NoError(t, err)

	_, err = in.AppendStream()
	require.Error(t, err)
	_, err = in.ReadStream()
	require.Error(t, err)

	require.NoError(t, w.Close())

	w2, err := in.AppendStream()
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestClearFreesDataBlocksAndResetsSize(t *testing.T) {
	store := open(t, 64)
	in := newInode(t, store)

	w, err := in.AppendStream()
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 1000))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	freeBefore, err := store.FreeBlocks()
	require.NoError(t, err)

	require.NoError(t, in.Clear())

	size, err := in.Size()
	require.NoError(t, err)
	require.EqualValues(t, 0, size)

	freeAfter, err := store.FreeBlocks()
	require.NoError(t, err)
	require.Greater(t, freeAfter, freeBefore)
}

func TestDeleteFreesRootToo(t *testing.T) {
	store := open(t, 64)
	blk, err := store.Allocate()
	require.NoError(t, err)
	in, err := inode.Create(store, blk.Address())
	require.NoError(t, err)

	w, err := in.AppendStream()
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, in.Delete())

	_, err = store.Get(in.Address())
	require.Error(t, err)
}
