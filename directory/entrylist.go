package directory

import (
	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// entriesOffset is the byte offset the first entry may start at: slot 0
// (size) and slot 1 (next) reserve the first two pointer-widths.
const entriesOffset = 2 * consts.PointerSize

// decodeEntry reads one entry at off in buf. A zero targetAddress means
// there is no entry here (end of live entries within the block).
func decodeEntry(buf []byte, off int) (Entry, int, bool) {
	if off+entryHeaderLen > len(buf) {
		return Entry{}, 0, false
	}
	target := int32(buf[off])<<24 | int32(buf[off+1])<<16 | int32(buf[off+2])<<8 | int32(buf[off+3])
	if target == 0 {
		return Entry{}, 0, false
	}
	flags := consts.EntryFlag(buf[off+4])
	nameLen := int(buf[off+5])
	nameStart := off + entryHeaderLen
	if nameStart+nameLen > len(buf) {
		return Entry{}, 0, false
	}
	name := string(buf[nameStart : nameStart+nameLen])
	entryLen := entryHeaderLen + nameLen
	return Entry{Name: name, Address: target, Flags: flags}, entryLen, true
}

func encodeEntry(buf []byte, off int, e Entry) int {
	buf[off] = byte(e.Address >> 24)
	buf[off+1] = byte(e.Address >> 16)
	buf[off+2] = byte(e.Address >> 8)
	buf[off+3] = byte(e.Address)
	buf[off+4] = byte(e.Flags)
	buf[off+5] = byte(len(e.Name))
	copy(buf[off+entryHeaderLen:], e.Name)
	entryLen := entryHeaderLen + len(e.Name)
	// Zero the separator byte and everything past the entry so a
	// subsequent scan reliably finds targetAddress == 0 as end-of-block.
	for i := off + entryLen; i < len(buf); i++ {
		buf[i] = 0
	}
	return entryLen
}

// scanBlock returns every entry packed into buf, in order.
func scanBlock(buf []byte) []Entry {
	var entries []Entry
	off := entriesOffset
	for {
		e, entryLen, ok := decodeEntry(buf, off)
		if !ok {
			break
		}
		entries = append(entries, e)
		off += entryLen + separatorLen
	}
	return entries
}

// appendEntry walks the chain rooted at head looking for room to pack a
// new entry, allocating and linking a fresh block if every existing
// block is full, then bumps the chain's size in the head block.
func (d *Directory) appendEntry(headAddr int32, e Entry) error {
	entryLen := entryHeaderLen + len(e.Name)

	cur, err := d.store.Get(headAddr)
	if err != nil {
		return err
	}
	for {
		buf, err := cur.Read()
		if err != nil {
			return err
		}
		off := entriesOffset
		for {
			_, existingLen, ok := decodeEntry(buf, off)
			if !ok {
				break
			}
			off += existingLen + separatorLen
		}
		if off+entryLen < int(d.blockSize) {
			encodeEntry(buf, off, e)
			if err := cur.Write(buf); err != nil {
				return err
			}
			head, err := d.store.Get(headAddr)
			if err != nil {
				return err
			}
			size, err := head.ReadInt(0)
			if err != nil {
				return err
			}
			return head.WriteInt(0, size+1)
		}

		next, err := cur.ReadInt(consts.PointerSize)
		if err != nil {
			return err
		}
		if next == 0 {
			nb, err := d.store.Allocate()
			if err != nil {
				return err
			}
			if err := nb.Clear(); err != nil {
				return err
			}
			if err := cur.WriteInt(consts.PointerSize, nb.Address()); err != nil {
				return err
			}
			cur = nb
			continue
		}
		nb, err := d.store.Get(next)
		if err != nil {
			return err
		}
		cur = nb
	}
}

// findEntry scans the chain rooted at head for name.
func (d *Directory) findEntry(headAddr int32, name string) (*Entry, error) {
	addr := headAddr
	for addr != 0 {
		blk, err := d.store.Get(addr)
		if err != nil {
			return nil, err
		}
		buf, err := blk.Read()
		if err != nil {
			return nil, err
		}
		for _, e := range scanBlock(buf) {
			if e.Name == name {
				found := e
				return &found, nil
			}
		}
		addr, err = blk.ReadInt(consts.PointerSize)
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// removeEntry deletes name from the chain rooted at head, compacting
// the block it lived in. If the emptied block is not the head, it is
// unlinked and deallocated. Returns whether the whole chain is now
// empty (size 0), which the caller uses to decide bucket cleanup.
func (d *Directory) removeEntry(headAddr int32, name string) (removed bool, chainEmpty bool, err error) {
	head, err := d.store.Get(headAddr)
	if err != nil {
		return false, false, err
	}
	originalSize, err := head.ReadInt(0)
	if err != nil {
		return false, false, err
	}

	var prev *blockstore.Block
	addr := headAddr
	for addr != 0 {
		blk, err := d.store.Get(addr)
		if err != nil {
			return false, false, err
		}
		buf, err := blk.Read()
		if err != nil {
			return false, false, err
		}
		entries := scanBlock(buf)

		idx := -1
		for i, e := range entries {
			if e.Name == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			next, err := blk.ReadInt(consts.PointerSize)
			if err != nil {
				return false, false, err
			}
			prev = blk
			addr = next
			continue
		}

		rest := append(entries[:idx:idx], entries[idx+1:]...)
		rewritten := make([]byte, d.blockSize)
		nextPtr, err := blk.ReadInt(consts.PointerSize)
		if err != nil {
			return false, false, err
		}
		if blk.Address() == headAddr {
			writeInt32(rewritten, 0, originalSize-1)
		}
		writeInt32(rewritten, consts.PointerSize, nextPtr)
		off := entriesOffset
		for _, e := range rest {
			off += encodeEntry(rewritten, off, e) + separatorLen
		}
		if err := blk.Write(rewritten); err != nil {
			return false, false, err
		}

		empty := len(rest) == 0
		if empty && blk.Address() != headAddr {
			if prev == nil {
				return false, false, sfvfserr.New(sfvfserr.InvalidState, "directory chain corrupted: non-head block with no predecessor")
			}
			if err := prev.WriteInt(consts.PointerSize, nextPtr); err != nil {
				return false, false, err
			}
			if err := d.store.Deallocate(blk.Address()); err != nil {
				return false, false, err
			}
		}

		if blk.Address() != headAddr {
			if err := head.WriteInt(0, originalSize-1); err != nil {
				return false, false, err
			}
		}
		return true, originalSize-1 == 0, nil
	}
	return false, false, nil
}

func writeInt32(buf []byte, off int, v int32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}
