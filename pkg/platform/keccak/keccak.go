// Package keccak exposes the legacy Keccak-256 hash used by EVM ledgers for
// function selectors, event topics and address checksums.
package keccak

import "golang.org/x/crypto/sha3"

// Sum256 hashes the concatenation of chunks.
func Sum256(chunks ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Selector returns the 4-byte function selector for a canonical signature
// such as "totalSupply()".
func Selector(signature string) [4]byte {
	sum := Sum256([]byte(signature))
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// Topic returns the topic0 hash for a canonical event signature.
func Topic(signature string) [32]byte {
	return Sum256([]byte(signature))
}
