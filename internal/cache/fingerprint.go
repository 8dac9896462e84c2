package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint derives a stable cache key from a namespace and the
// canonicalized request input. Parts are length-prefixed so ("ab","c") and
// ("a","bc") never collide.
func Fingerprint(namespace string, parts ...[]byte) string {
	h := sha256.New()

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(namespace)))
	h.Write(size[:])
	h.Write([]byte(namespace))

	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}

	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
