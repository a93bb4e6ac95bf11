// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the artifact storage and versioning
// engine: content-addressed blobs with deduplication and reference
// counting, per-artifact version chains, a directed lineage graph, a
// time-bounded handoff state machine, and a retention sweeper.
//
// Metadata lives in SQLite; payloads live in a content-addressed
// filesystem store (lib/cas). Every write path runs inside an
// IMMEDIATE transaction, making SQLite's writer serialization the
// engine's single concurrency primitive: no lost refcount updates,
// no gapped or duplicated version numbers, and deterministic
// resolution when a handoff completion races the expiry scan.
package engine
