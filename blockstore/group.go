package blockstore

import (
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// groupOffset returns the file offset of the first byte (the meta
// block) of group id.
func (s *BlockStore) groupOffset(id int32) int64 {
	return s.headerLen + int64(id)*s.groupSize
}

// readGroupMeta reads the full meta block of a group: one byte per
// physical slot in the group, low bit is the taken flag.
func (s *BlockStore) readGroupMeta(id int32) ([]byte, error) {
	buf := make([]byte, s.blocksInGroup)
	if _, err := s.file.ReadAt(buf, s.groupOffset(id)); err != nil {
		return nil, sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return buf, nil
}

func (s *BlockStore) writeGroupMetaByte(id, slot int32, flag consts.GroupFlag) error {
	_, err := s.file.WriteAt([]byte{byte(flag)}, s.groupOffset(id)+int64(slot))
	if err != nil {
		return sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	return nil
}

// firstFreeSlot scans a group's meta bytes for the first non-taken slot,
// skipping slot 0 (the meta block itself, always taken). Returns -1 if
// the group is full.
func (s *BlockStore) firstFreeSlot(id int32) (int32, error) {
	meta, err := s.readGroupMeta(id)
	if err != nil {
		return -1, err
	}
	for i := int32(1); i < s.blocksInGroup; i++ {
		if !consts.GroupFlag(meta[i]).Taken() {
			return i, nil
		}
	}
	return -1, nil
}

// firstTakenSlot scans a group's meta bytes for the first taken slot
// other than slot 0. Returns -1 if the group has no live data blocks.
func (s *BlockStore) firstTakenSlot(id int32) (int32, error) {
	meta, err := s.readGroupMeta(id)
	if err != nil {
		return -1, err
	}
	for i := int32(1); i < s.blocksInGroup; i++ {
		if consts.GroupFlag(meta[i]).Taken() {
			return i, nil
		}
	}
	return -1, nil
}

// groupHasFreeSlot is a cheap membership test used while refilling the
// free-groups cache.
func (s *BlockStore) groupHasFreeSlot(id int32) (bool, error) {
	slot, err := s.firstFreeSlot(id)
	if err != nil {
		return false, err
	}
	return slot != -1, nil
}

func (s *BlockStore) groupIsEmpty(id int32) (bool, error) {
	slot, err := s.firstTakenSlot(id)
	if err != nil {
		return false, err
	}
	return slot == -1, nil
}

func (s *BlockStore) groupFreeCount(id int32) (int32, error) {
	meta, err := s.readGroupMeta(id)
	if err != nil {
		return 0, err
	}
	var free int32
	for i := int32(1); i < s.blocksInGroup; i++ {
		if !consts.GroupFlag(meta[i]).Taken() {
			free++
		}
	}
	return free, nil
}

// markSlot sets or clears the taken bit for slot within group id.
func (s *BlockStore) markSlot(id, slot int32, taken bool) error {
	var flag consts.GroupFlag
	if taken {
		flag = flag.WithTaken(true)
	}
	return s.writeGroupMetaByte(id, slot, flag)
}

// growByOneGroup appends a fresh, zeroed group at the tail of the file
// and marks its meta slot as taken.
func (s *BlockStore) growByOneGroup() (int32, error) {
	id := s.allocatedGroups
	newSize := s.headerLen + int64(id+1)*s.groupSize
	if err := s.file.Truncate(newSize); err != nil {
		return 0, sfvfserr.Wrap(sfvfserr.IoError, err)
	}
	if err := s.markSlot(id, 0, true); err != nil {
		return 0, err
	}
	s.allocatedGroups++
	s.opts.Logger.WithFields(map[string]interface{}{
		"group": id,
		"total": s.allocatedGroups,
	}).Debug("sfvfs: block store grew by one group")
	return id, nil
}
