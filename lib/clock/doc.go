// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. The retention
// sweeper, handoff expiry, and backoff loops all take a Clock so tests
// can drive time deterministically with Fake instead of sleeping.
package clock
