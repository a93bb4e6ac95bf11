// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package cas

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of uncompressed blob content. It is
// the blob's globally unique identity: two producers uploading
// byte-identical content compute the same Hash and share one blob.
type Hash [32]byte

// blobDomainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that blob hashes can never collide with hashes
// computed elsewhere over the same bytes. The key is the ASCII
// encoding of the domain name, zero-padded to 32 bytes: readable in
// hex dumps without sacrificing any cryptographic property (keyed
// BLAKE3 treats the key as an opaque 32-byte value).
var blobDomainKey = [32]byte{
	'c', 'a', 's', 'k', '.', 'b', 'l', 'o', 'b', 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashContent computes the blob-domain BLAKE3 keyed hash of raw
// (uncompressed) content. Hashes are always computed on uncompressed
// bytes so deduplication is unaffected by compression choices.
func HashContent(data []byte) Hash {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		// NewKeyed only fails for wrong key length, which the
		// fixed-size array rules out.
		panic("cas: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// IsZero reports whether the hash is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded representation. This is the
// canonical format used in metadata rows, logs, and API responses.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing blob hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("blob hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}
