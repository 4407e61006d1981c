package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HTTPKey builds the cache key for a response fetched from rawURL.
// The namespace separates independent clients sharing one cache directory.
func HTTPKey(namespace, rawURL string) string {
	return "http:" + namespace + ":" + rawURL
}
