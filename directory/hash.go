package directory

import "crypto/sha256"

// bucketHash derives a stable non-negative bucket index in [0, buckets)
// for name. spec §4.3 leaves the exact hash-folding open when the
// source's original algorithm is opaque (spec §9); this implementation
// takes the first four bytes of SHA-256(name) as a big-endian uint32
// and reduces modulo buckets. Chosen over a simpler string hash
// because indexed-mode load must not correlate with name prefixes the
// way FNV/djb2 style hashes can for names sharing a common prefix.
func bucketHash(name string, buckets int32) int32 {
	sum := sha256.Sum256([]byte(name))
	v := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	return int32(v % uint32(buckets))
}
