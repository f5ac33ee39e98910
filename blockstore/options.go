package blockstore

import "github.com/sirupsen/logrus"

// Mode mirrors the small set of RandomAccessFile-style open modes the
// original engine accepted.
type Mode string

const (
	// ModeReadWrite buffers writes through the OS page cache normally.
	ModeReadWrite Mode = "rw"
	// ModeSynchronous fsyncs file metadata and data on every write.
	// Rarely useful (spec §5: "the engine performs no implicit fsync"),
	// kept only because the on-disk format contract (spec §6) lists it
	// as a pass-through option the facade may request.
	ModeSynchronous Mode = "rwd"
)

const (
	DefaultBlockSize             = 4 * 1024
	DefaultFreeGroupsCacheSize   = 100
	DefaultFreeAddressCacheSize  = 100
	DefaultMaxBlocks             = 1024 * 1024
)

// Options configures Open. Every field has a documented default so a
// caller can pass a zero-value Options{} and still get a usable store.
type Options struct {
	// BlockSize must be a positive power of two.
	BlockSize int32
	// MaxBlocks bounds the logical address space. Must be a multiple of
	// BlockSize and must not exceed consts.MaxBlocksHardLimit.
	MaxBlocks int32
	// FreeGroupsCacheSize bounds the in-memory set of groups known to
	// have a free slot.
	FreeGroupsCacheSize int
	// FreeAddressCacheSize bounds the in-memory queue of known-free
	// logical addresses.
	FreeAddressCacheSize int
	// Mode selects the underlying file open discipline.
	Mode Mode
	// Logger receives structured diagnostics (group growth, cache
	// exhaustion, compaction). Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.MaxBlocks == 0 {
		o.MaxBlocks = DefaultMaxBlocks
	}
	if o.FreeGroupsCacheSize == 0 {
		o.FreeGroupsCacheSize = DefaultFreeGroupsCacheSize
	}
	if o.FreeAddressCacheSize == 0 {
		o.FreeAddressCacheSize = DefaultFreeAddressCacheSize
	}
	if o.Mode == "" {
		o.Mode = ModeReadWrite
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
