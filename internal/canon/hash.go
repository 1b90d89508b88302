// Copyright 2025 James Ross
package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of canonical bytes.
func Hash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and returns its content hash in one step.
func HashValue(v interface{}) (string, []byte, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	return Hash(b), b, nil
}

// Hashable is implemented by records that know which of their own fields
// belong in a content hash (excluding ephemeral fields such as
// observed_at_utc/fetched_at_utc).
type Hashable interface {
	// HashFields returns the caller-declared subset of fields to include
	// in the content hash, as a JSON-shaped map.
	HashFields() map[string]interface{}
}

// HashRecord computes the content hash over a Hashable's declared fields.
func HashRecord(h Hashable) (string, error) {
	digest, _, err := HashValue(h.HashFields())
	return digest, err
}

// Verify recomputes a Hashable's content hash and compares it against the
// digest the record claims. Tamper detection is a first-class behavior:
// any mutation to an included field flips this to false.
func Verify(h Hashable, claimedSHA256 string) (bool, error) {
	actual, err := HashRecord(h)
	if err != nil {
		return false, err
	}
	return actual == claimedSHA256, nil
}
