// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package cas

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Directory names within the store root.
const (
	payloadDir = "payloads"
	tmpDir     = "tmp"
)

// Store holds blob payloads on the local filesystem, addressed by
// content hash. Payloads are written compressed; the compression tag
// and uncompressed size live in the blob metadata row, not on disk.
//
// Writes are idempotent: storing content that already exists is a
// no-op returning the existing payload's identity. The store never
// interprets payloads and carries no reference counts; liveness is
// the metadata layer's concern, and deletion is driven by the
// retention sweeper.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, payloadDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// WriteResult is returned by [Store.Write] with metadata about the
// stored payload.
type WriteResult struct {
	// Hash is the blob-domain BLAKE3 hash of the uncompressed
	// content (the blob identity).
	Hash Hash

	// Size is the uncompressed content size in bytes.
	Size int64

	// StoredSize is the on-disk payload size after compression.
	StoredSize int64

	// Compression is the algorithm actually applied. May be
	// CompressionNone even when a compressing algorithm was
	// selected, if the content turned out incompressible.
	Compression Compression
}

// Write stores content under its content hash. The mediaType guides
// compression selection; pass an empty string to probe the content.
//
// If a payload for this hash already exists on disk, the write is a
// no-op (identical content produces identical payloads by
// construction) and the existing payload's parameters are returned.
func (s *Store) Write(content []byte, mediaType string) (*WriteResult, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("cannot store empty content")
	}

	hash := HashContent(content)

	// Dedup fast path: payload already on disk. The compression tag
	// is derived from the stored bytes themselves. The current call's
	// media type may differ from the one that produced the file (a
	// put whose metadata transaction never committed leaves the
	// payload behind), and a reported tag that does not match the
	// stored bytes would make the payload unreadable.
	if stored, err := os.ReadFile(s.payloadPath(hash)); err == nil {
		if compression, ok := detectCompression(stored, content); ok {
			return &WriteResult{
				Hash:        hash,
				Size:        int64(len(content)),
				StoredSize:  int64(len(stored)),
				Compression: compression,
			}, nil
		}
		// The stored bytes do not decode back to this content:
		// corrupt or stale debris. Remove it and rewrite below.
		if err := s.Delete(hash); err != nil {
			return nil, err
		}
	}

	selected := SelectCompression(probe(content), mediaType)
	stored, applied, err := Compress(content, selected)
	if err != nil {
		return nil, fmt.Errorf("compressing payload %s: %w", hash, err)
	}

	if err := s.writeAtomic(hash, stored); err != nil {
		return nil, err
	}

	return &WriteResult{
		Hash:        hash,
		Size:        int64(len(content)),
		StoredSize:  int64(len(stored)),
		Compression: applied,
	}, nil
}

// detectCompression identifies how an on-disk payload was compressed
// by decoding it against the known uncompressed content. Returns false
// when the stored bytes do not decode back to the content under any
// supported algorithm.
func detectCompression(stored, content []byte) (Compression, bool) {
	if bytes.Equal(stored, content) {
		return CompressionNone, true
	}
	if decoded, err := decompressZstd(stored, len(content)); err == nil && bytes.Equal(decoded, content) {
		return CompressionZstd, true
	}
	if decoded, err := decompressLZ4(stored, len(content)); err == nil && bytes.Equal(decoded, content) {
		return CompressionLZ4, true
	}
	return 0, false
}

// probeSize bounds how much content SelectCompression inspects.
const probeSize = 64 * 1024

func probe(content []byte) []byte {
	if len(content) > probeSize {
		return content[:probeSize]
	}
	return content
}

// Read loads a payload, decompresses it with the given parameters,
// and verifies the content hash before returning. A hash mismatch
// means on-disk corruption and is always an error.
func (s *Store) Read(hash Hash, compression Compression, size int64) ([]byte, error) {
	stored, err := os.ReadFile(s.payloadPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading payload %s: %w", hash, err)
	}

	content, err := Decompress(stored, compression, int(size))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload %s: %w", hash, err)
	}

	if computed := HashContent(content); computed != hash {
		return nil, fmt.Errorf("payload %s failed verification: computed %s", hash, computed)
	}

	return content, nil
}

// Exists checks whether a payload is present on disk.
func (s *Store) Exists(hash Hash) bool {
	_, err := os.Stat(s.payloadPath(hash))
	return err == nil
}

// Delete removes a payload from disk. Deleting a payload that is
// already gone is a no-op, so the sweeper can safely retry after a
// partial failure.
func (s *Store) Delete(hash Hash) error {
	err := os.Remove(s.payloadPath(hash))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing payload %s: %w", hash, err)
	}
	return nil
}

// PayloadInfo describes one on-disk payload, for orphan scanning.
type PayloadInfo struct {
	Hash     Hash
	Size     int64
	ModTime  time.Time
}

// Scan walks all payloads on disk and calls fn for each. Used by the
// sweeper to find payload files whose hash has no metadata row (crash
// debris from a write that never committed).
func (s *Store) Scan(fn func(PayloadInfo) error) error {
	root := filepath.Join(s.root, payloadDir)
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		hash, parseErr := ParseHash(entry.Name())
		if parseErr != nil {
			// Not a payload file; skip.
			return nil
		}
		info, statErr := entry.Info()
		if statErr != nil {
			return statErr
		}
		return fn(PayloadInfo{
			Hash:    hash,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// writeAtomic writes a payload via temp file + rename so a crash can
// never leave a partially written payload at its final path.
func (s *Store) writeAtomic(hash Hash, stored []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "payload-*.bin")
	if err != nil {
		return fmt.Errorf("creating temp payload file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(stored); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing payload %s: %w", hash, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp payload: %w", err)
	}

	finalPath := s.payloadPath(hash)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating payload shard directory: %w", err)
	}

	// A concurrent writer may have landed the same payload first:
	// identical by construction, keep theirs.
	if _, err := os.Stat(finalPath); err == nil {
		os.Remove(tmpPath)
		success = true
		return nil
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming payload to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// payloadPath returns the sharded filesystem path for a payload.
// Payloads are sharded by the first two bytes of the hash hex:
// payloads/a3/f9/a3f9b2c1e7d4...
func (s *Store) payloadPath(hash Hash) string {
	hex := hash.String()
	return filepath.Join(s.root, payloadDir, hex[:2], hex[2:4], hex)
}
