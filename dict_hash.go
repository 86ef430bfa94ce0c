package revdb

import "github.com/cespare/xxhash/v2"

// dictHashCode computes the 16-bit advisory hash stored in a dict's hash
// index. It only needs to be stable for the lifetime of a single encoder
// implementation (lookups always verify by key comparison), so truncating
// a wider, well-distributed hash is sufficient.
func dictHashCode(key []byte) uint16 {
	return uint16(xxhash.Sum64(key))
}

func dictHashCodeString(key string) uint16 {
	return uint16(xxhash.Sum64String(key))
}
