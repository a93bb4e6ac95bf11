// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Caskd is the artifact storage and versioning daemon. It stores
// immutable, content-deduplicated payloads in a hash-addressed file
// store, tracks artifacts and their append-only version chains in
// SQLite, and serves an HTTP+JSON API for producers and consumers.
//
// # Startup
//
// Configuration comes from a YAML file (--config flag or CASK_CONFIG
// environment variable) merged over built-in loopback defaults; a few
// flags override individual values. On startup the daemon creates the
// data directories, opens the engine (SQLite metadata plus the payload
// store), starts the retention sweeper, and binds the HTTP listener.
//
// # HTTP API
//
// The API groups into four surfaces:
//
//   - /artifacts: create, read, patch, delete, list; append and read
//     versions; fetch raw payload bytes; lineage traversal
//   - /relationships: record typed lineage edges between artifacts
//   - /handoffs: create and drive handoff state transitions
//   - /status (unauthenticated): uptime, storage stats, per-tenant
//     usage counters
//
// # Shutdown
//
// SIGINT or SIGTERM triggers graceful shutdown: the listener stops
// accepting connections and drains in-flight requests, the sweeper
// finishes its current cycle and stops, and the engine's connection
// pool closes last.
package main
