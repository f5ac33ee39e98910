package directory

import "github.com/akutuzov/sfvfs/consts"

// EntryIterator is a stateful, forward-only lazy producer over a
// directory's entries (spec §9's "iterators over disk-resident chains"
// guidance): blocks are loaded one at a time and only as far as the next
// entry; a call to Next that meets blocks with no entries loads further
// blocks until it finds an entry or runs out. It is not restartable and
// holds no lock beyond the store's single-owner model.
type EntryIterator struct {
	d       *Directory
	heads   []int32
	headIdx int

	curAddr int32
	entries []Entry
	idx     int
}

// Iterator returns a fresh EntryIterator over every entry currently in
// the directory, across all bucket chains in indexed mode or the single
// chain in plain mode.
func (d *Directory) Iterator() (*EntryIterator, error) {
	indexed, err := d.indexed()
	if err != nil {
		return nil, err
	}

	var heads []int32
	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return nil, err
		}
		if head != 0 {
			heads = append(heads, head)
		}
	} else {
		for slot := int32(0); slot < d.headSlots; slot++ {
			addr, err := d.root.ReadInt(int(firstHeadSlot+slot) * consts.PointerSize)
			if err != nil {
				return nil, err
			}
			if addr != 0 {
				heads = append(heads, addr)
			}
		}
	}
	return &EntryIterator{d: d, heads: heads}, nil
}

// Next returns the next entry, or ok=false once the iterator is
// exhausted.
func (it *EntryIterator) Next() (Entry, bool, error) {
	for {
		if it.idx < len(it.entries) {
			e := it.entries[it.idx]
			it.idx++
			return e, true, nil
		}
		if it.curAddr == 0 {
			if it.headIdx >= len(it.heads) {
				return Entry{}, false, nil
			}
			it.curAddr = it.heads[it.headIdx]
			it.headIdx++
		}
		blk, err := it.d.store.Get(it.curAddr)
		if err != nil {
			return Entry{}, false, err
		}
		buf, err := blk.Read()
		if err != nil {
			return Entry{}, false, err
		}
		it.entries = scanBlock(buf)
		it.idx = 0
		next, err := blk.ReadInt(consts.PointerSize)
		if err != nil {
			return Entry{}, false, err
		}
		it.curAddr = next
		if len(it.entries) == 0 && it.curAddr == 0 {
			continue
		}
	}
}
