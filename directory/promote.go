package directory

import (
	"github.com/sirupsen/logrus"

	"github.com/akutuzov/sfvfs/consts"
)

// maybePromote converts the directory from plain to indexed mode once
// the single chain's size crosses minToIndex. Promotion is one-shot;
// there is no reverse transition (spec §4.3, §9).
func (d *Directory) maybePromote() error {
	indexed, err := d.indexed()
	if err != nil {
		return err
	}
	if indexed {
		return nil
	}

	head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
	if err != nil {
		return err
	}
	headBlock, err := d.store.Get(head)
	if err != nil {
		return err
	}
	size, err := headBlock.ReadInt(0)
	if err != nil {
		return err
	}
	if int(size) < d.minToIndex {
		return nil
	}

	var all []Entry
	addr := head
	for addr != 0 {
		blk, err := d.store.Get(addr)
		if err != nil {
			return err
		}
		buf, err := blk.Read()
		if err != nil {
			return err
		}
		all = append(all, scanBlock(buf)...)
		next, err := blk.ReadInt(consts.PointerSize)
		if err != nil {
			return err
		}
		if addr != head {
			if err := d.store.Deallocate(addr); err != nil {
				return err
			}
		}
		addr = next
	}
	if err := d.store.Deallocate(head); err != nil {
		return err
	}

	buckets := make(map[int32]int32, d.headSlots)
	for _, e := range all {
		bucket := bucketHash(e.Name, d.headSlots)
		headAddr, ok := buckets[bucket]
		if !ok {
			nb, err := d.store.Allocate()
			if err != nil {
				return err
			}
			if err := nb.Clear(); err != nil {
				return err
			}
			headAddr = nb.Address()
			buckets[bucket] = headAddr
		}
		if err := d.appendEntry(headAddr, e); err != nil {
			return err
		}
	}

	for slot := int32(0); slot < d.headSlots; slot++ {
		addr := int32(0)
		if a, ok := buckets[slot]; ok {
			addr = a
		}
		if err := d.root.WriteInt(int((firstHeadSlot+slot))*consts.PointerSize, addr); err != nil {
			return err
		}
	}

	flags, err := d.flags()
	if err != nil {
		return err
	}
	if err := d.setFlags(flags.With(consts.DirectoryIndexed, true)); err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"directory": d.RootAddress(),
		"entries":   len(all),
		"buckets":   len(buckets),
	}).Debug("sfvfs: directory promoted to indexed")
	return nil
}

// bucketSlot returns the root slot index (1..N-1) that owns name's
// bucket in indexed mode.
func (d *Directory) bucketSlot(name string) int32 {
	return firstHeadSlot + bucketHash(name, d.headSlots)
}
