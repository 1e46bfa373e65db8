package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StorageKey isolates a caller key under a namespace in a shared byte store.
func StorageKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// Redact returns a short, stable digest of key for logs and metrics labels.
func Redact(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
