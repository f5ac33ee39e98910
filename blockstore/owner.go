package blockstore

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/akutuzov/sfvfs/internal/sfvfserr"
)

// currentGoroutineID parses the "goroutine N [running]:" header that
// runtime.Stack always emits. This is the same trick the teacher's
// errors package relies on runtime.Stack for (capturing a trace); we
// reuse the same stdlib call to recover the id instead. It is the
// cheapest way to model spec §5's "single owning execution context"
// without inventing a synthetic ownership token that callers would have
// to thread through every operation.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *BlockStore) checkOwner() error {
	if got := currentGoroutineID(); got != s.ownerGoroutine {
		return sfvfserr.New(sfvfserr.WrongOwner, "block store %q opened by goroutine %d, called from %d", s.path, s.ownerGoroutine, got)
	}
	return nil
}
