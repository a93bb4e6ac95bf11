// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cask-engine/cask/lib/cas"
)

// orphanGrace is how old an unreferenced payload file must be before
// the sweeper removes it. In-flight puts write their payload before
// committing a metadata row; the grace period keeps the sweeper from
// racing them. Crash debris is always older than this by the time a
// sweep sees it.
const orphanGrace = time.Hour

// SweepStats summarizes one sweep cycle.
type SweepStats struct {
	HandoffsExpired  int
	ArtifactsDeleted int
	BlobsCollected   int
	OrphansRemoved   int
}

// RunSweeper runs sweep cycles at the given interval until ctx is
// cancelled. Individual cycle failures are logged, never fatal.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			stats, err := e.Sweep(ctx)
			if err != nil {
				e.logger.Error("sweep cycle failed", "error", err)
				continue
			}
			if stats != (SweepStats{}) {
				e.logger.Info("sweep cycle",
					"handoffs_expired", stats.HandoffsExpired,
					"artifacts_deleted", stats.ArtifactsDeleted,
					"blobs_collected", stats.BlobsCollected,
					"orphans_removed", stats.OrphansRemoved,
				)
			}
		}
	}
}

// Sweep runs one reclamation cycle: expire due handoffs, delete
// expired artifacts, collect zero-refcount blobs, remove orphaned
// payload files. Each phase is independently atomic, so the sweep is
// safe to interrupt and resume, safe to run concurrently with live
// writes and with itself, and idempotent: re-running against
// already-reclaimed state is a no-op.
//
// Per-item failures inside a phase are logged and retried on the next
// cycle; they never abort the sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	expired, err := e.ExpireDue(ctx)
	if err != nil {
		return stats, err
	}
	stats.HandoffsExpired = expired

	deleted, err := e.sweepExpiredArtifacts(ctx)
	if err != nil {
		return stats, err
	}
	stats.ArtifactsDeleted = deleted

	collected, err := e.sweepZeroRefBlobs(ctx)
	if err != nil {
		return stats, err
	}
	stats.BlobsCollected = collected

	removed, err := e.sweepOrphanPayloads(ctx)
	if err != nil {
		return stats, err
	}
	stats.OrphansRemoved = removed

	return stats, nil
}

// sweepExpiredArtifacts deletes every artifact whose expiry has
// passed and whose status is not archived. Each deletion is its own
// atomic unit; an artifact deleted concurrently (explicit delete, or
// another sweeper) is a no-op here.
func (e *Engine) sweepExpiredArtifacts(ctx context.Context) (int, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return 0, storageError(err, "sweep artifacts")
	}

	var due []string
	err = sqlitex.Execute(conn, `
		SELECT id FROM artifacts
		WHERE expires_at IS NOT NULL AND expires_at <= ? AND status != ?`,
		&sqlitex.ExecOptions{
			Args: []any{e.now().UnixNano(), string(StatusArchived)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				due = append(due, stmt.ColumnText(0))
				return nil
			},
		})
	e.pool.Put(conn)
	if err != nil {
		return 0, storageError(err, "scan expired artifacts")
	}

	deleted := 0
	for _, artifactID := range due {
		if err := e.DeleteArtifact(ctx, artifactID); err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}
			e.logger.Error("sweep: artifact deletion failed",
				"artifact_id", artifactID,
				"error", err,
			)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// sweepZeroRefBlobs removes blobs whose reference count is zero. The
// payload is deleted while the write transaction holds the lock, so
// a concurrent put of the same content serializes after the row is
// gone and recreates both row and payload; the row is only removed
// once payload deletion has succeeded.
func (e *Engine) sweepZeroRefBlobs(ctx context.Context) (int, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return 0, storageError(err, "sweep blobs")
	}
	defer e.pool.Put(conn)

	type candidate struct {
		id   string
		hash cas.Hash
	}
	var candidates []candidate
	err = sqlitex.Execute(conn,
		"SELECT id, hash FROM blobs WHERE refcount = 0",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hash, err := cas.ParseHash(stmt.ColumnText(1))
				if err != nil {
					return err
				}
				candidates = append(candidates, candidate{id: stmt.ColumnText(0), hash: hash})
				return nil
			},
		})
	if err != nil {
		return 0, storageError(err, "scan zero-ref blobs")
	}

	collected := 0
	for _, blob := range candidates {
		if err := e.collectBlob(conn, blob.id, blob.hash); err != nil {
			e.logger.Error("sweep: blob collection failed",
				"blob_id", blob.id,
				"hash", blob.hash,
				"error", err,
			)
			continue
		}
		collected++
	}
	return collected, nil
}

// collectBlob removes one zero-refcount blob: payload first, then the
// metadata row, inside one IMMEDIATE transaction. The refcount is
// re-checked under the lock because a put may have resurrected the
// blob since the scan.
func (e *Engine) collectBlob(conn *sqlite.Conn, blobID string, hash cas.Hash) error {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageError(err, "collect blob: begin transaction")
	}
	defer endTransaction(&err)

	stillZero := false
	err = sqlitex.Execute(conn,
		"SELECT 1 FROM blobs WHERE id = ? AND refcount = 0",
		&sqlitex.ExecOptions{
			Args: []any{blobID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stillZero = true
				return nil
			},
		})
	if err != nil {
		err = storageError(err, "re-check blob %s", blobID)
		return err
	}
	if !stillZero {
		return nil
	}

	if err = e.cas.Delete(hash); err != nil {
		err = storageError(err, "delete payload %s", hash)
		return err
	}

	err = sqlitex.Execute(conn,
		"DELETE FROM blobs WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{blobID}})
	if err != nil {
		err = storageError(err, "delete blob row %s", blobID)
	}
	return err
}

// sweepOrphanPayloads removes payload files that have no blob row:
// crash debris from puts that wrote their payload but never committed
// metadata. Only payloads older than the grace period are touched,
// and the no-row check plus deletion happen under the write lock so
// an in-flight put of the same content cannot lose its payload.
func (e *Engine) sweepOrphanPayloads(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-orphanGrace)

	var candidates []cas.Hash
	err := e.cas.Scan(func(info cas.PayloadInfo) error {
		if info.ModTime.Before(cutoff) {
			candidates = append(candidates, info.Hash)
		}
		return nil
	})
	if err != nil {
		return 0, storageError(err, "scan payloads")
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return 0, storageError(err, "sweep orphans")
	}
	defer e.pool.Put(conn)

	removed := 0
	for _, hash := range candidates {
		ok, err := e.removeOrphanPayload(conn, hash)
		if err != nil {
			e.logger.Error("sweep: orphan removal failed",
				"hash", hash,
				"error", err,
			)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// removeOrphanPayload deletes a payload file if no blob row claims
// its hash. Runs inside an IMMEDIATE transaction purely for the write
// lock: holding it keeps a concurrent put from committing a row for
// this hash between the check and the deletion.
func (e *Engine) removeOrphanPayload(conn *sqlite.Conn, hash cas.Hash) (bool, error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, storageError(err, "remove orphan: begin transaction")
	}
	defer endTransaction(&err)

	claimed := false
	err = sqlitex.Execute(conn,
		"SELECT 1 FROM blobs WHERE hash = ?",
		&sqlitex.ExecOptions{
			Args: []any{hash.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				claimed = true
				return nil
			},
		})
	if err != nil {
		err = storageError(err, "check orphan %s", hash)
		return false, err
	}
	if claimed {
		return false, nil
	}

	if err = e.cas.Delete(hash); err != nil {
		err = storageError(err, "delete orphan payload %s", hash)
		return false, err
	}
	return true, nil
}
