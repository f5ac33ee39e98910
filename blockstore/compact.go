package blockstore

import "github.com/akutuzov/sfvfs/internal/sfvfserr"

// Compact implements spec §4.1's compaction algorithm: pack live blocks
// toward the head of the file and truncate away empty trailing groups,
// while preserving every logical address. Any Block handle obtained
// before this call becomes stale (spec's mapping version).
func (s *BlockStore) Compact() error {
	if err := s.checkOwner(); err != nil {
		return err
	}
	if s.allocatedGroups == 0 {
		return nil
	}

	reverse := make(map[int32]int32, s.allocatedGroups*s.blocksInGroup/2)
	for logical := int32(1); logical < s.opts.MaxBlocks; logical++ {
		if p := s.logicalToPhysical[logical]; p >= 0 {
			reverse[p] = logical
		}
	}

	startGroup := int32(0)
	endGroup := s.allocatedGroups - 1

	for startGroup < endGroup {
		for startGroup < endGroup {
			hasFree, err := s.groupHasFreeSlot(startGroup)
			if err != nil {
				return err
			}
			if hasFree {
				break
			}
			startGroup++
		}
		if startGroup >= endGroup {
			break
		}

		for endGroup > startGroup {
			empty, err := s.groupIsEmpty(endGroup)
			if err != nil {
				return err
			}
			if !empty {
				break
			}
			if endGroup != s.allocatedGroups-1 {
				return sfvfserr.New(sfvfserr.InvalidState, "compaction invariant violated: end cursor %d is not the tail group %d", endGroup, s.allocatedGroups-1)
			}
			if err := s.shrinkByOneGroup(); err != nil {
				return err
			}
			endGroup--
		}
		if endGroup <= startGroup {
			break
		}

		if err := s.moveBlocks(startGroup, endGroup, reverse); err != nil {
			return err
		}
	}

	for s.allocatedGroups > 0 {
		empty, err := s.groupIsEmpty(s.allocatedGroups - 1)
		if err != nil {
			return err
		}
		if !empty {
			break
		}
		if err := s.shrinkByOneGroup(); err != nil {
			return err
		}
	}

	s.freeGroups.Clear()
	s.freeAddrs.Clear()
	s.groupCursor = 0
	s.addrCursor = 0
	s.mappingVersion++

	s.opts.Logger.WithField("groups", s.allocatedGroups).Debug("sfvfs: compaction complete")
	return nil
}

// moveBlocks copies allocated blocks one at a time from the tail group
// (source) into free slots of the head group (target), until the target
// fills up or the source empties out.
func (s *BlockStore) moveBlocks(target, source int32, reverse map[int32]int32) error {
	for {
		hasFree, err := s.groupHasFreeSlot(target)
		if err != nil {
			return err
		}
		if !hasFree {
			return nil
		}
		empty, err := s.groupIsEmpty(source)
		if err != nil {
			return err
		}
		if empty {
			return nil
		}

		srcSlot, err := s.firstTakenSlot(source)
		if err != nil {
			return err
		}
		dstSlot, err := s.firstFreeSlot(target)
		if err != nil {
			return err
		}

		srcPhysical := source*s.blocksInGroup + srcSlot
		dstPhysical := target*s.blocksInGroup + dstSlot

		data := make([]byte, s.opts.BlockSize)
		if _, err := s.file.ReadAt(data, s.headerLen+int64(srcPhysical)*int64(s.opts.BlockSize)); err != nil {
			return sfvfserr.Wrap(sfvfserr.IoError, err)
		}
		if _, err := s.file.WriteAt(data, s.headerLen+int64(dstPhysical)*int64(s.opts.BlockSize)); err != nil {
			return sfvfserr.Wrap(sfvfserr.IoError, err)
		}

		logical, ok := reverse[srcPhysical]
		if !ok {
			return sfvfserr.New(sfvfserr.InvalidState, "compaction found allocated physical block %d with no logical owner", srcPhysical)
		}

		if err := s.writeHeaderSlot(logical, dstPhysical); err != nil {
			return err
		}
		if err := s.markSlot(target, dstSlot, true); err != nil {
			return err
		}
		if err := s.markSlot(source, srcSlot, false); err != nil {
			return err
		}

		delete(reverse, srcPhysical)
		reverse[dstPhysical] = logical
	}
}

func (s *BlockStore) shrinkByOneGroup() error {
	s.allocatedGroups--
	newSize := s.headerLen + int64(s.allocatedGroups)*s.groupSize
	if err := s.file.Truncate(newSize); err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return nil
}
