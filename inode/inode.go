// Package inode implements spec §4.2: a regular file as a chained
// sequence of blocks over a blockstore.BlockStore, with an append-only
// output stream and a sequential input stream. It is grounded on
// original_source's Inode.java for the chain-walking shape, extended
// per spec.md with the "last inode" shortcut pointer and the explicit
// locked flag for at-most-one-active-stream enforcement (spec §5).
package inode

import (
	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

const (
	flagsSlot = 0
	sizeSlot  = 1
	lastSlot  = 2
	// firstDataSlot is where per-block data pointers begin; slots 0-2
	// are reserved (meaningful only in the root block) on every inode
	// block for layout uniformity, per spec §4.2.
	firstDataSlotOffset = 3
)

// Inode is a handle to one regular file's root block.
type Inode struct {
	store *blockstore.BlockStore
	root  *blockstore.Block

	blockSize     int32
	slotsPerBlock int32
	firstDataSlot int32
	lastDataSlot  int32
	nextPtrSlot   int32
}

// New opens an inode whose root block already lives at address. Use
// Create to initialize a fresh one first.
func New(store *blockstore.BlockStore, address int32) (*Inode, error) {
	if address <= 0 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "inode address must be more than 0: %d", address)
	}
	root, err := store.Get(address)
	if err != nil {
		return nil, err
	}
	slots := store.BlockSize() / consts.PointerSize
	if slots <= firstDataSlotOffset+1 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "block size %d too small to hold an inode layout", store.BlockSize())
	}
	return &Inode{
		store:         store,
		root:          root,
		blockSize:     store.BlockSize(),
		slotsPerBlock: slots,
		firstDataSlot: firstDataSlotOffset,
		lastDataSlot:  slots - 2,
		nextPtrSlot:   slots - 1,
	}, nil
}

// Create zeroes the inode's root block, giving it flags=0, size=0 and
// an empty last-inode shortcut.
func Create(store *blockstore.BlockStore, address int32) (*Inode, error) {
	in, err := New(store, address)
	if err != nil {
		return nil, err
	}
	if err := in.root.Clear(); err != nil {
		return nil, err
	}
	return in, nil
}

// Address returns the inode's root block address.
func (in *Inode) Address() int32 { return in.root.Address() }

// Size returns the total number of user bytes currently in the file.
func (in *Inode) Size() (int32, error) {
	return in.root.ReadInt(sizeSlot * consts.PointerSize)
}

func (in *Inode) flags() (consts.InodeFlag, error) {
	v, err := in.root.ReadInt(flagsSlot * consts.PointerSize)
	if err != nil {
		return 0, err
	}
	return consts.InodeFlag(v), nil
}

func (in *Inode) setFlags(f consts.InodeFlag) error {
	return in.root.WriteInt(flagsSlot*consts.PointerSize, int32(f))
}

// lastInodeBlock resolves the current tail of the inode chain. It
// starts from the root's "last inode" shortcut (spec §4.2) when present
// and walks forward until it finds a block whose next-pointer is zero;
// this is always correct (the chain is a forward-only singly linked
// list) even when the shortcut is stale, and it refreshes the shortcut
// for future callers.
func (in *Inode) lastInodeBlock() (*blockstore.Block, error) {
	shortcut, err := in.root.ReadInt(lastSlot * consts.PointerSize)
	if err != nil {
		return nil, err
	}
	cur := in.root
	if shortcut != 0 {
		if blk, err := in.store.Get(shortcut); err == nil {
			cur = blk
		}
	}
	for {
		next, err := cur.ReadInt(int(in.nextPtrSlot) * consts.PointerSize)
		if err != nil {
			return nil, err
		}
		if next == 0 {
			break
		}
		nb, err := in.store.Get(next)
		if err != nil {
			return nil, err
		}
		cur = nb
	}
	if cur.Address() != in.root.Address() {
		if err := in.root.WriteInt(lastSlot*consts.PointerSize, cur.Address()); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Clear frees every block owned by the inode except the root, and
// zeroes the root block. Size returns to 0 afterward.
func (in *Inode) Clear() error {
	return in.clear(false)
}

// Delete frees every block owned by the inode, including the root.
func (in *Inode) Delete() error {
	return in.clear(true)
}

func (in *Inode) clear(removeRoot bool) error {
	cur := in.root
	for {
		for i := in.firstDataSlot; i <= in.lastDataSlot; i++ {
			addr, err := cur.ReadInt(int(i) * consts.PointerSize)
			if err != nil {
				return err
			}
			if addr == 0 {
				break
			}
			if err := in.store.Deallocate(addr); err != nil {
				return err
			}
		}
		next, err := cur.ReadInt(int(in.nextPtrSlot) * consts.PointerSize)
		if err != nil {
			return err
		}
		if cur.Address() != in.root.Address() {
			if err := in.store.Deallocate(cur.Address()); err != nil {
				return err
			}
		}
		if next == 0 {
			break
		}
		nb, err := in.store.Get(next)
		if err != nil {
			return err
		}
		cur = nb
	}

	if removeRoot {
		return in.store.Deallocate(in.root.Address())
	}
	return in.root.Clear()
}
