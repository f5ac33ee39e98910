package directory_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/directory"
)

func open(t *testing.T, blockSize int32) *blockstore.BlockStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.sfvfs")
	s, err := blockstore.Open(path, blockstore.Options{BlockSize: blockSize, MaxBlocks: blockSize * 4096})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddFindRemoveRoundTrip(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{MaxNameLen: 30})
	require.NoError(t, err)

	require.NoError(t, d.Add("readme.txt", 42, 0))
	e, err := d.Find("readme.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "readme.txt", e.Name)
	require.EqualValues(t, 42, e.Address)
	require.EqualValues(t, 0, e.Flags)

	require.NoError(t, d.Remove("readme.txt"))
	e, err = d.Find("readme.txt")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestSizeLaw(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{MaxNameLen: 30})
	require.NoError(t, err)

	var adds, removes int32
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("f%d", i), int32(i+2), 0))
		adds++
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Remove(fmt.Sprintf("f%d", i)))
		removes++
	}
	size, err := d.Size()
	require.NoError(t, err)
	require.EqualValues(t, adds-removes, size)
}

func TestDuplicateAddFails(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{MaxNameLen: 30})
	require.NoError(t, err)

	require.NoError(t, d.Add("x", 5, 0))
	err = d.Add("x", 6, 0)
	require.Error(t, err)
}

func TestMalformedNameRejected(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{MaxNameLen: 30})
	require.NoError(t, err)

	require.Error(t, d.Add("", 5, 0))
	require.Error(t, d.Add("has space", 5, 0))
	require.Error(t, d.Add("has/slash", 5, 0))

	longName := make([]byte, 40)
	for i := range longName {
		longName[i] = 'a'
	}
	require.Error(t, d.Add(string(longName), 5, 0))
}

func TestDeleteRequiresEmpty(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{MaxNameLen: 30})
	require.NoError(t, err)

	require.NoError(t, d.Add("x", 5, 0))
	require.Error(t, d.Delete())

	require.NoError(t, d.Remove("x"))
	require.NoError(t, d.Delete())
}

// TestIndexedDirectory is spec §8 scenario 6.
func TestIndexedDirectory(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{
		MaxNameLen:                      30,
		DirectoryMinSizeToBecomeIndexed: 10,
	})
	require.NoError(t, err)

	const n = 9999
	for k := 1; k <= n; k++ {
		require.NoError(t, d.Add(fmt.Sprintf("%d", k), int32(k), 0))
	}

	for k := 1; k <= n; k++ {
		e, err := d.Find(fmt.Sprintf("%d", k))
		require.NoError(t, err)
		require.NotNil(t, e, "expected to find %d", k)
		require.EqualValues(t, k, e.Address)
	}

	for k := 1; k <= n; k++ {
		require.NoError(t, d.Remove(fmt.Sprintf("%d", k)))
	}

	size, err := d.Size()
	require.NoError(t, err)
	require.EqualValues(t, 0, size)

	for k := 1; k <= n; k++ {
		e, err := d.Find(fmt.Sprintf("%d", k))
		require.NoError(t, err)
		require.Nil(t, e)
	}
}

func TestPromotionPreservesExistingNames(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{
		MaxNameLen:                      30,
		DirectoryMinSizeToBecomeIndexed: 5,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("n%d", i), int32(i+2), 0))
	}

	for i := 0; i < 5; i++ {
		e, err := d.Find(fmt.Sprintf("n%d", i))
		require.NoError(t, err)
		require.NotNil(t, e)
	}

	size, err := d.Size()
	require.NoError(t, err)
	require.EqualValues(t, 5, size)

	require.NoError(t, d.Add("n5", 100, 0))
	e, err := d.Find("n5")
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestListConcatenatesAllChains(t *testing.T) {
	store := open(t, 1024)
	d, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{
		MaxNameLen:                      30,
		DirectoryMinSizeToBecomeIndexed: 5,
	})
	require.NoError(t, err)

	names := map[string]bool{}
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("item%d", i)
		names[name] = true
		require.NoError(t, d.Add(name, int32(i+2), 0))
	}

	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 30)
	for _, e := range entries {
		require.True(t, names[e.Name])
		delete(names, e.Name)
	}
	require.Empty(t, names)
}
