// Package blockstore implements spec §4.1: a fixed-size block store over
// a single host file, with a stable logical address space, allocation,
// deallocation and online compaction. It is grounded on
// _examples/timtadh-fs2/file (the non-cgo BlockFile: plain os.File
// seek/read/write, a free list and an allocate-or-grow policy) rather
// than the teacher's mmap-based fmap package — see DESIGN.md for why.
package blockstore

import (
	"encoding/binary"
	"os"

	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// BlockStore owns the backing container file described in spec §6.
type BlockStore struct {
	path string
	file *os.File
	opts Options

	headerLen     int64
	blocksInGroup int32
	groupSize     int64

	allocatedGroups int32

	// logicalToPhysical is the in-memory cache array described in spec
	// §4.1 ("an in-memory logical→physical cache (array of size
	// maxBlocks)"). -1 means unmapped.
	logicalToPhysical []int32

	mappingVersion uint64

	freeGroups *groupSet
	freeAddrs  *addrQueue
	groupCursor int32
	addrCursor  int32

	ownerGoroutine uint64
	closed         bool
}

// Open opens or creates the container at path. If the file is empty it
// is initialized fresh; otherwise the existing header is read and
// validated against opts.
func Open(path string, opts Options) (*BlockStore, error) {
	opts = opts.withDefaults()

	if opts.BlockSize <= 0 || (opts.BlockSize&(opts.BlockSize-1)) != 0 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "block size %d must be a positive power of two", opts.BlockSize)
	}
	if opts.MaxBlocks <= 0 || opts.MaxBlocks%opts.BlockSize != 0 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "max blocks %d must be a positive multiple of block size %d", opts.MaxBlocks, opts.BlockSize)
	}
	if opts.MaxBlocks > consts.MaxBlocksHardLimit {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "max blocks %d exceeds hard limit %d", opts.MaxBlocks, consts.MaxBlocksHardLimit)
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.Mode == ModeSynchronous {
		flag |= os.O_SYNC
	}
	f, err := os.OpenFile(path, flag, 0666)
	if err != nil {
		return nil, sfvfserr.Wrap(sfvfserr.IoError, err)
	}

	headerLen := padUp(int64(opts.MaxBlocks)*consts.PointerSize, int64(opts.BlockSize))
	groupSize := int64(opts.BlockSize) * int64(opts.BlockSize)

	s := &BlockStore{
		path:              path,
		file:              f,
		opts:              opts,
		headerLen:         headerLen,
		blocksInGroup:     opts.BlockSize,
		groupSize:         groupSize,
		logicalToPhysical: make([]int32, opts.MaxBlocks),
		freeGroups:        newGroupSet(opts.FreeGroupsCacheSize),
		freeAddrs:         newAddrQueue(opts.FreeAddressCacheSize),
		ownerGoroutine:    currentGoroutineID(),
	}
	for i := range s.logicalToPhysical {
		s.logicalToPhysical[i] = -1
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sfvfserr.Wrap(sfvfserr.IoError, err)
	}

	if fi.Size() == 0 {
		if err := s.initFresh(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := s.loadExisting(fi.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}

	return s, nil
}

func padUp(n, multiple int64) int64 {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}

func (s *BlockStore) initFresh() error {
	if err := s.file.Truncate(s.headerLen); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return nil
}

func (s *BlockStore) loadExisting(size int64) error {
	dataSize := size - s.headerLen
	if dataSize < 0 || dataSize%s.groupSize != 0 {
		return sfvfserr.New(sfvfserr.InvalidArgument, "container file size %d is not consistent with header length %d and group size %d", size, s.headerLen, s.groupSize)
	}
	s.allocatedGroups = int32(dataSize / s.groupSize)

	header := make([]byte, s.headerLen)
	if _, err := s.file.ReadAt(header, 0); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	for logical := int32(0); logical < s.opts.MaxBlocks; logical++ {
		v := int32(binary.BigEndian.Uint32(header[logical*consts.PointerSize:]))
		if v != 0 {
			s.logicalToPhysical[logical] = v - 1
		}
	}
	return nil
}

// Close closes the underlying file.
func (s *BlockStore) Close() error {
	if err := s.checkOwner(); err != nil {
		return err
	}
	if s.closed {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	s.closed = true
	return nil
}

// BlockSize returns the configured block size.
func (s *BlockStore) BlockSize() int32 { return s.opts.BlockSize }

// TotalBlocks returns allocatedGroups * blocksInGroup.
func (s *BlockStore) TotalBlocks() int32 {
	return s.allocatedGroups * s.blocksInGroup
}

// FreeBlocks scans every allocated group and sums its free slots. It is
// a debug/accounting accessor (spec §6 `freeBlocks`), not on any hot
// path.
func (s *BlockStore) FreeBlocks() (int32, error) {
	if err := s.checkOwner(); err != nil {
		return 0, err
	}
	var total int32
	for g := int32(0); g < s.allocatedGroups; g++ {
		free, err := s.groupFreeCount(g)
		if err != nil {
			return 0, err
		}
		total += free
	}
	return total, nil
}

func (s *BlockStore) header(logical int32) (int64, error) {
	if logical <= 0 || logical >= s.opts.MaxBlocks {
		return 0, sfvfserr.New(sfvfserr.InvalidArgument, "logical address %d out of range", logical)
	}
	return int64(logical) * consts.PointerSize, nil
}

func (s *BlockStore) writeHeaderSlot(logical, physical int32) error {
	off, err := s.header(logical)
	if err != nil {
		return err
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(physical+1))
	if _, err := s.file.WriteAt(buf[:], off); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	s.logicalToPhysical[logical] = physical
	return nil
}

func (s *BlockStore) clearHeaderSlot(logical int32) error {
	off, err := s.header(logical)
	if err != nil {
		return err
	}
	var buf [4]byte
	if _, err := s.file.WriteAt(buf[:], off); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	s.logicalToPhysical[logical] = -1
	return nil
}

// Get resolves a logical address to a Block handle using the in-memory
// logical→physical cache.
func (s *BlockStore) Get(logical int32) (*Block, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	if logical <= 0 || logical >= s.opts.MaxBlocks {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "logical address %d out of range", logical)
	}
	physical := s.logicalToPhysical[logical]
	if physical < 0 {
		// The cache mirrors the whole header (it is filled at Open and
		// updated on every header write), so a miss means the address is
		// unmapped; the header itself is not read here.
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "logical address %d is not mapped", logical)
	}
	return &Block{store: s, logical: logical, physical: physical, version: s.mappingVersion}, nil
}

// Allocate picks a free physical slot and a free logical address,
// records the mapping, and returns a handle to the new block.
func (s *BlockStore) Allocate() (*Block, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}

	groupID, slot, err := s.allocatePhysicalSlot()
	if err != nil {
		return nil, err
	}
	logical, err := s.allocateLogicalAddress()
	if err != nil {
		return nil, err
	}

	if err := s.markSlot(groupID, slot, true); err != nil {
		return nil, err
	}
	physical := groupID*s.blocksInGroup + slot
	if err := s.writeHeaderSlot(logical, physical); err != nil {
		return nil, err
	}

	if hasFree, err := s.groupHasFreeSlot(groupID); err == nil && !hasFree {
		s.freeGroups.Remove(groupID)
	}

	return &Block{store: s, logical: logical, physical: physical, version: s.mappingVersion}, nil
}

// allocatePhysicalSlot returns (groupID, slotIndex) of a free slot,
// refilling and, if necessary, growing the group cache per spec §4.1.
func (s *BlockStore) allocatePhysicalSlot() (int32, int32, error) {
	if s.freeGroups.Len() == 0 {
		if err := s.refillFreeGroups(); err != nil {
			return 0, 0, err
		}
	}
	if s.freeGroups.Len() == 0 {
		id, err := s.growByOneGroup()
		if err != nil {
			return 0, 0, err
		}
		s.freeGroups.Add(id)
	}
	groupID, _ := s.freeGroups.First()
	slot, err := s.firstFreeSlot(groupID)
	if err != nil {
		return 0, 0, err
	}
	if slot == -1 {
		// Stale cache entry; drop it and try again (repeats until a group
		// with a free slot is found or a new group is grown).
		s.freeGroups.Remove(groupID)
		return s.allocatePhysicalSlot()
	}
	return groupID, slot, nil
}

func (s *BlockStore) refillFreeGroups() error {
	if s.allocatedGroups == 0 {
		return nil
	}
	start := s.groupCursor % s.allocatedGroups
	scanned := int32(0)
	for scanned < s.allocatedGroups && !s.freeGroups.Full() {
		g := (start + scanned) % s.allocatedGroups
		hasFree, err := s.groupHasFreeSlot(g)
		if err != nil {
			return err
		}
		if hasFree {
			s.freeGroups.Add(g)
		}
		scanned++
	}
	s.groupCursor = (start + scanned) % s.allocatedGroups
	if s.freeGroups.Len() == 0 {
		s.opts.Logger.Warn("sfvfs: free-groups cache exhausted, no existing group has room")
	}
	return nil
}

func (s *BlockStore) allocateLogicalAddress() (int32, error) {
	if addr, ok := s.freeAddrs.Pop(); ok {
		return addr, nil
	}
	if err := s.refillFreeAddrs(); err != nil {
		return 0, err
	}
	if addr, ok := s.freeAddrs.Pop(); ok {
		return addr, nil
	}
	return 0, sfvfserr.New(sfvfserr.OutOfSpace, "all %d logical addresses are in use", s.opts.MaxBlocks)
}

func (s *BlockStore) refillFreeAddrs() error {
	// Logical address 0 is the reserved null pointer (spec §3); the
	// scannable range is [1, MaxBlocks).
	span := s.opts.MaxBlocks - 1
	if span <= 0 {
		return nil
	}
	start := int32(1) + (s.addrCursor % span)
	scanned := int32(0)
	for scanned < span && !s.freeAddrs.Full() {
		addr := int32(1) + ((start - 1 + scanned) % span)
		if s.logicalToPhysical[addr] < 0 {
			s.freeAddrs.Push(addr)
		}
		scanned++
	}
	s.addrCursor = (start - 1 + scanned) % span
	if s.freeAddrs.Len() == 0 {
		s.opts.Logger.Warn("sfvfs: free-address cache exhausted, container may be near capacity")
	}
	return nil
}

// Deallocate frees the block at logical, clearing its slot's taken bit
// and its header mapping.
func (s *BlockStore) Deallocate(logical int32) error {
	if err := s.checkOwner(); err != nil {
		return err
	}
	if logical <= 0 || logical >= s.opts.MaxBlocks {
		return sfvfserr.New(sfvfserr.InvalidArgument, "logical address %d out of range", logical)
	}
	physical := s.logicalToPhysical[logical]
	if physical < 0 {
		return sfvfserr.New(sfvfserr.InvalidState, "logical address %d is not mapped (double free?)", logical)
	}

	groupID := physical / s.blocksInGroup
	slot := physical % s.blocksInGroup
	if err := s.markSlot(groupID, slot, false); err != nil {
		return err
	}
	if err := s.clearHeaderSlot(logical); err != nil {
		return err
	}

	if !s.freeGroups.Full() {
		s.freeGroups.Add(groupID)
	}
	if !s.freeAddrs.Full() {
		s.freeAddrs.Push(logical)
	}
	return nil
}
