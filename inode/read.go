package inode

import (
	"io"

	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// Reader is the sequential input stream described in spec §4.2. Like
// Appender, opening one takes the inode's locked flag so at most one
// stream (read or append) is active at a time.
type Reader struct {
	inode *Inode

	remaining int32

	inodeBlock *blockstore.Block
	slot       int32

	dataBuf []byte
	dataPos int
}

// ReadStream opens a sequential reader over the inode's full content,
// from byte 0. Fails with InvalidState if a stream is already open.
func (in *Inode) ReadStream() (*Reader, error) {
	flags, err := in.flags()
	if err != nil {
		return nil, err
	}
	if flags.Has(consts.InodeLocked) {
		return nil, sfvfserr.New(sfvfserr.InvalidState, "inode %d already has an open stream", in.Address())
	}
	if err := in.setFlags(flags.With(consts.InodeLocked, true)); err != nil {
		return nil, err
	}

	size, err := in.Size()
	if err != nil {
		return nil, err
	}

	r := &Reader{
		inode:      in,
		remaining:  size,
		inodeBlock: in.root,
		slot:       in.firstDataSlot,
	}
	return r, nil
}

// advance loads the next data block into dataBuf, walking to the next
// inode block via the next-pointer slot when the current inode block's
// data slots are exhausted.
func (r *Reader) advance() error {
	if r.slot > r.inode.lastDataSlot {
		next, err := r.inodeBlock.ReadInt(int(r.inode.nextPtrSlot) * consts.PointerSize)
		if err != nil {
			return err
		}
		if next == 0 {
			return sfvfserr.New(sfvfserr.InvalidState, "inode chain ended before declared size was read")
		}
		nb, err := r.inode.store.Get(next)
		if err != nil {
			return err
		}
		r.inodeBlock = nb
		r.slot = r.inode.firstDataSlot
	}

	addr, err := r.inodeBlock.ReadInt(int(r.slot) * consts.PointerSize)
	if err != nil {
		return err
	}
	if addr == 0 {
		return sfvfserr.New(sfvfserr.InvalidState, "inode chain ended before declared size was read")
	}
	r.slot++

	block, err := r.inode.store.Get(addr)
	if err != nil {
		return err
	}
	buf, err := block.Read()
	if err != nil {
		return err
	}
	r.dataBuf = buf
	r.dataPos = 0
	return nil
}

// Read implements io.Reader over the inode's content, honoring the
// declared size rather than the raw block boundary so a short final
// write (spec §8 scenario 4) is not over-read.
func (r *Reader) Read(p []byte) (int, error) {
	if r.inodeBlock == nil {
		return 0, sfvfserr.New(sfvfserr.InvalidState, "read stream closed")
	}
	if r.remaining == 0 {
		return 0, io.EOF
	}

	read := 0
	for read < len(p) && r.remaining > 0 {
		if r.dataPos == len(r.dataBuf) {
			if err := r.advance(); err != nil {
				return read, err
			}
		}
		avail := len(r.dataBuf) - r.dataPos
		want := len(p) - read
		if int32(want) > r.remaining {
			want = int(r.remaining)
		}
		chunk := avail
		if chunk > want {
			chunk = want
		}
		copy(p[read:], r.dataBuf[r.dataPos:r.dataPos+chunk])
		r.dataPos += chunk
		read += chunk
		r.remaining -= int32(chunk)
	}
	return read, nil
}

// Close releases the inode's locked flag. It is not safe to call Read
// after Close.
func (r *Reader) Close() error {
	if r.inodeBlock == nil {
		return nil
	}
	flags, err := r.inode.flags()
	if err != nil {
		return err
	}
	if err := r.inode.setFlags(flags.With(consts.InodeLocked, false)); err != nil {
		return err
	}
	r.inodeBlock = nil
	return nil
}
