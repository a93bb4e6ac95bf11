// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the engine over HTTP+JSON. The API maps
// engine error kinds to status codes and carries content bytes as
// base64 inside JSON bodies; the content endpoint serves raw payload
// bytes with the stored media type.
package httpapi
