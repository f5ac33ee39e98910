package blockstore

import (
	"encoding/binary"

	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// Block is a handle to a single logical block. It carries the mapping
// version observed at construction time; every operation re-checks that
// version against the store's current one so a handle taken before a
// compaction fails fast instead of silently reading the wrong physical
// location (spec §4.1 "Mapping version").
type Block struct {
	store    *BlockStore
	logical  int32
	physical int32
	version  uint64
}

// Address returns the block's stable logical address.
func (b *Block) Address() int32 { return b.logical }

// Size returns the configured block size in bytes.
func (b *Block) Size() int { return int(b.store.opts.BlockSize) }

func (b *Block) checkValid() error {
	if err := b.store.checkOwner(); err != nil {
		return err
	}
	if b.version != b.store.mappingVersion {
		return sfvfserr.New(sfvfserr.StaleHandle, "block %d used after compaction (opened at version %d, now %d)", b.logical, b.version, b.store.mappingVersion)
	}
	return nil
}

func (b *Block) offset() int64 {
	return b.store.headerLen + int64(b.physical)*int64(b.store.opts.BlockSize)
}

// Read returns the full contents of the block.
func (b *Block) Read() ([]byte, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	buf := make([]byte, b.Size())
	if _, err := b.store.file.ReadAt(buf, b.offset()); err != nil {
		return nil, sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return buf, nil
}

// Write writes bytes starting at the beginning of the block. Per spec
// §4.1, bytes shorter than the block size are written verbatim without
// zero-extension: the tail of the block is left as whatever was there
// before.
func (b *Block) Write(bytes []byte) error {
	if err := b.checkValid(); err != nil {
		return err
	}
	if len(bytes) > b.Size() {
		return sfvfserr.New(sfvfserr.InvalidArgument, "write of %d bytes exceeds block size %d", len(bytes), b.Size())
	}
	if _, err := b.store.file.WriteAt(bytes, b.offset()); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return nil
}

// ReadInt reads the big-endian 32-bit integer at pos within the block.
func (b *Block) ReadInt(pos int) (int32, error) {
	if err := b.checkValid(); err != nil {
		return 0, err
	}
	if pos < 0 || pos+4 > b.Size() {
		return 0, sfvfserr.New(sfvfserr.InvalidArgument, "position %d out of range for block size %d", pos, b.Size())
	}
	var buf [4]byte
	if _, err := b.store.file.ReadAt(buf[:], b.offset()+int64(pos)); err != nil {
		return 0, sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteInt writes the big-endian 32-bit integer v at pos within the
// block.
func (b *Block) WriteInt(pos int, v int32) error {
	if err := b.checkValid(); err != nil {
		return err
	}
	if pos < 0 || pos+4 > b.Size() {
		return sfvfserr.New(sfvfserr.InvalidArgument, "position %d out of range for block size %d", pos, b.Size())
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	if _, err := b.store.file.WriteAt(buf[:], b.offset()+int64(pos)); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return nil
}

// Clear overwrites the entire block with zero bytes.
func (b *Block) Clear() error {
	return b.Write(make([]byte, b.Size()))
}
