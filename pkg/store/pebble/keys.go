package pebblestore

import "encoding/binary"

// Keyspace layout:
//
//	t/item/{key}                                  -> item JSON
//	t/idx/{value}/{update_time 8B BE}{key}        -> projected item JSON
//
// The index segment mirrors a GSI keyed on (value, update_time): the
// fixed-width big-endian timestamp keeps entries within one index partition
// ordered oldest-first under Pebble's lexicographic key order.
const (
	prefixItem = "t/item/"
	prefixIdx  = "t/idx/"
)

func itemKey(key string) []byte {
	return append([]byte(prefixItem), key...)
}

func indexKey(value string, updateTimeMs int64, key string) []byte {
	prefix := prefixIdx + value + "/"
	out := make([]byte, len(prefix)+8+len(key))
	copy(out, prefix)
	binary.BigEndian.PutUint64(out[len(prefix):], uint64(updateTimeMs))
	copy(out[len(prefix)+8:], key)
	return out
}

// keyRange returns inclusive lower and exclusive upper bounds for scanning
// all keys beginning with prefix.
func keyRange(prefix string) ([]byte, []byte) {
	start := []byte(prefix)
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return start, end
}
