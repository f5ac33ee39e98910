// Package directory implements spec §4.3: a name-to-block-address map
// that adaptively converts from a single entity list ("plain") to a
// hash-bucketed table ("indexed") once it grows past a configured
// threshold. It is grounded on original_source's Directory.java for the
// entry packing and the plain-mode chain-scanning shape, extended per
// spec.md with indexed-mode buckets and one-shot promotion.
package directory

import (
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

const (
	flagsSlot = 0
	firstHeadSlot = 1

	// entryHeaderLen is targetAddress(4) + entryFlags(1) + nameLen(1).
	entryHeaderLen = consts.PointerSize + 1 + 1
	// separatorLen is the one unused byte every scanner skips after an
	// entry, per spec §6.
	separatorLen = 1
)

// nameRegexp is spec §4.3's restricted name alphabet.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9${}\-_.]+$`)

// Entry is one (name, target, flags) mapping held by a directory.
type Entry struct {
	Name    string
	Address int32
	Flags   consts.EntryFlag
}

// Directory is a handle to a directory's root block.
type Directory struct {
	store *blockstore.BlockStore
	root  *blockstore.Block

	blockSize    int32
	headSlots    int32 // N-1: number of usable head-pointer slots
	maxNameLen   int
	minToIndex   int
	logger       *logrus.Logger
}

// Options configures a Directory beyond the mandatory store/address.
type Options struct {
	MaxNameLen                     int
	DirectoryMinSizeToBecomeIndexed int
	// Logger receives structured diagnostics (add/remove/promotion),
	// mirroring blockstore.Options.Logger. Defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

const (
	DefaultMaxNameLen                      = 255
	DefaultDirectoryMinSizeToBecomeIndexed = 100
)

func (o Options) withDefaults() Options {
	if o.MaxNameLen <= 0 {
		o.MaxNameLen = DefaultMaxNameLen
	}
	if o.DirectoryMinSizeToBecomeIndexed <= 0 {
		o.DirectoryMinSizeToBecomeIndexed = DefaultDirectoryMinSizeToBecomeIndexed
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// New opens a directory whose root block already exists at address. Use
// Create to initialize a fresh one first.
func New(store *blockstore.BlockStore, address int32, opts Options) (*Directory, error) {
	opts = opts.withDefaults()
	if address <= 0 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "directory address must be more than 0: %d", address)
	}
	root, err := store.Get(address)
	if err != nil {
		return nil, err
	}
	slots := store.BlockSize() / consts.PointerSize
	if slots <= firstHeadSlot {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "block size %d too small to hold a directory root", store.BlockSize())
	}
	if int(store.BlockSize()) < opts.MaxNameLen*2 {
		return nil, sfvfserr.New(sfvfserr.InvalidArgument, "block size %d must be at least twice max name length %d", store.BlockSize(), opts.MaxNameLen)
	}
	return &Directory{
		store:      store,
		root:       root,
		blockSize:  store.BlockSize(),
		headSlots:  slots - 1,
		maxNameLen: opts.MaxNameLen,
		minToIndex: opts.DirectoryMinSizeToBecomeIndexed,
		logger:     opts.Logger,
	}, nil
}

// Create zeroes the root block and allocates the single plain-mode
// entity list at slot 1. If address is not mapped yet, Create first
// allocates a block for it; that succeeds only when the store hands out
// address next, as a fresh store does for the root address 1.
func Create(store *blockstore.BlockStore, address int32, opts Options) (*Directory, error) {
	if address > 0 {
		if _, err := store.Get(address); err != nil {
			blk, aerr := store.Allocate()
			if aerr != nil {
				return nil, aerr
			}
			if blk.Address() != address {
				if derr := store.Deallocate(blk.Address()); derr != nil {
					return nil, derr
				}
				return nil, err
			}
		}
	}
	d, err := New(store, address, opts)
	if err != nil {
		return nil, err
	}
	if err := d.root.Clear(); err != nil {
		return nil, err
	}
	head, err := d.store.Allocate()
	if err != nil {
		return nil, err
	}
	if err := head.Clear(); err != nil {
		return nil, err
	}
	if err := d.root.WriteInt(firstHeadSlot*consts.PointerSize, head.Address()); err != nil {
		return nil, err
	}
	return d, nil
}

// RootAddress returns the directory's root block address.
func (d *Directory) RootAddress() int32 { return d.root.Address() }

func (d *Directory) flags() (consts.DirectoryFlag, error) {
	v, err := d.root.ReadInt(flagsSlot * consts.PointerSize)
	if err != nil {
		return 0, err
	}
	return consts.DirectoryFlag(v), nil
}

func (d *Directory) setFlags(f consts.DirectoryFlag) error {
	return d.root.WriteInt(flagsSlot*consts.PointerSize, int32(f))
}

func (d *Directory) indexed() (bool, error) {
	f, err := d.flags()
	if err != nil {
		return false, err
	}
	return f.Has(consts.DirectoryIndexed), nil
}

func validateName(name string, maxNameLen int) error {
	if name == "" {
		return sfvfserr.New(sfvfserr.InvalidArgument, "name must not be empty")
	}
	if len(name) > maxNameLen {
		return sfvfserr.New(sfvfserr.InvalidArgument, "name %q exceeds max length %d", name, maxNameLen)
	}
	if !nameRegexp.MatchString(name) {
		return sfvfserr.New(sfvfserr.InvalidArgument, "name %q contains characters outside [A-Za-z0-9${}\\-_.]+", name)
	}
	return nil
}
