// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with the
// engine's standard pragmas: WAL journaling, NORMAL synchronous, a
// five-second busy timeout, and foreign key enforcement. Every
// component that persists metadata shares one Pool; SQLite's single
// writer combined with IMMEDIATE transactions is the engine's
// serialization point for refcounts and version counters.
package sqlitepool
