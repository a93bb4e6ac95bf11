// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding for free-form
// payloads the engine persists but does not interpret: relationship
// context, handoff context, and provenance blocks. Deterministic
// encoding gives every payload a single canonical byte representation,
// so idempotency checks (same link, same context) reduce to byte
// comparison against the stored column.
package codec
