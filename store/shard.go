package store

import "github.com/cespare/xxhash/v2"

// defaultShards is the number of buckets used by the in-memory maps when
// no explicit count is configured.
const defaultShards = 32

func shardIndex(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}
