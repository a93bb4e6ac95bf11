// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TenantUsage holds per-tenant consumption counters. Exposed for
// downstream billing and quota systems; the engine never enforces
// limits itself.
type TenantUsage struct {
	Tenant        string
	ArtifactCount int64
	VersionCount  int64

	// ContentBytes is the uncompressed size of all versions. Shared
	// blobs count once per referencing version, since that is what
	// each tenant asked the engine to hold.
	ContentBytes int64
}

// Usage returns consumption counters per tenant, ordered by tenant.
func (e *Engine) Usage(ctx context.Context) ([]TenantUsage, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "usage")
	}
	defer e.pool.Put(conn)

	var usage []TenantUsage
	err = sqlitex.Execute(conn, `
		SELECT a.tenant, COUNT(DISTINCT a.id), COUNT(v.id), COALESCE(SUM(v.size), 0)
		FROM artifacts a LEFT JOIN versions v ON v.artifact_id = a.id
		GROUP BY a.tenant ORDER BY a.tenant`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				usage = append(usage, TenantUsage{
					Tenant:        stmt.ColumnText(0),
					ArtifactCount: stmt.ColumnInt64(1),
					VersionCount:  stmt.ColumnInt64(2),
					ContentBytes:  stmt.ColumnInt64(3),
				})
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "usage")
	}
	return usage, nil
}

// Stats holds engine-wide storage statistics for the status surface.
type Stats struct {
	ArtifactCount     int64
	VersionCount      int64
	BlobCount         int64
	StoredBytes       int64 // compressed payload bytes on disk
	CollectibleBlobs  int64 // zero-refcount blobs awaiting sweep
	PendingHandoffs   int64
	DatabaseSizeBytes int64
}

// GetStats returns current storage statistics.
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return Stats{}, storageError(err, "stats")
	}
	defer e.pool.Put(conn)

	var stats Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM artifacts", &stats.ArtifactCount},
		{"SELECT COUNT(*) FROM versions", &stats.VersionCount},
		{"SELECT COUNT(*) FROM blobs", &stats.BlobCount},
		{"SELECT COALESCE(SUM(stored_size), 0) FROM blobs", &stats.StoredBytes},
		{"SELECT COUNT(*) FROM blobs WHERE refcount = 0", &stats.CollectibleBlobs},
		{"SELECT COUNT(*) FROM handoffs WHERE status = 'pending'", &stats.PendingHandoffs},
		{"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()", &stats.DatabaseSizeBytes},
	}
	for _, count := range counts {
		err = sqlitex.Execute(conn, count.query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				*count.dest = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return Stats{}, storageError(err, "stats")
		}
	}
	return stats, nil
}
