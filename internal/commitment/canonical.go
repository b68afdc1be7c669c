package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes data deterministically: compact JSON with object
// keys in lexicographic order (encoding/json sorts map keys). Commitment
// equality depends on byte-for-byte identical serialization, so every hash
// in this package goes through here.
func Canonicalize(data map[string]any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize commitment data: %w", err)
	}
	return raw, nil
}

// HashHex returns the lowercase hex SHA-256 of the input, the only hash
// format this core emits (64 hex characters).
func HashHex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// HashStrings hashes the concatenation of parts. Used for nullifier
// derivation where the parts already are fixed-format strings.
func HashStrings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsHexHash reports whether s looks like a value this core produced.
func IsHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
