// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package cas is the content-addressed payload store. Payloads are
// identified by a domain-separated BLAKE3 hash of their uncompressed
// bytes, compressed with zstd or LZ4 (auto-selected from the media
// type or a content probe), and written to a sharded directory tree
// via temp file + atomic rename.
//
// The store is deliberately dumb: no reference counts, no metadata.
// The engine's blob table owns liveness; the store only guarantees
// that a payload at its final path is complete and that reads verify
// the content hash.
package cas
