// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cask-engine/cask/lib/cas"
)

// PutContent stores content and returns a reference to its blob.
// The payload is written to the content-addressed store first, then
// the metadata row is created (refcount 1) or its refcount
// incremented (existing hash) in one IMMEDIATE transaction.
//
// Two callers uploading byte-identical content concurrently converge
// on a single blob row: the payload write is idempotent by content
// addressing, and the upsert is a single statement serialized by
// SQLite. Neither caller loses an increment.
//
// A crash between payload write and metadata commit leaves an
// unreferenced payload file and no row. The sweeper removes such
// orphans after a grace period; a metadata row never exists without
// its payload.
func (e *Engine) PutContent(ctx context.Context, content []byte, mediaType string) (BlobRef, error) {
	if len(content) == 0 {
		return BlobRef{}, validationError("content must not be empty")
	}

	result, err := e.writePayload(ctx, content, mediaType)
	if err != nil {
		return BlobRef{}, err
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return BlobRef{}, storageError(err, "put content")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return BlobRef{}, storageError(err, "put content: begin transaction")
	}
	defer endTransaction(&err)

	ref, err := e.upsertBlob(conn, result, content, mediaType)
	if err != nil {
		return BlobRef{}, err
	}
	return ref, nil
}

// writePayload writes content to the content-addressed store,
// retrying with exponential backoff up to the configured attempt
// budget. Each attempt is all-or-nothing: a failed write leaves at
// most a temp file, never a partial payload at the final path.
func (e *Engine) writePayload(ctx context.Context, content []byte, mediaType string) (*cas.WriteResult, error) {
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= e.putAttempts; attempt++ {
		result, err := e.cas.Write(content, mediaType)
		if err == nil {
			return result, nil
		}
		lastErr = err

		e.logger.Warn("payload write failed",
			"attempt", attempt,
			"max_attempts", e.putAttempts,
			"error", err,
		)

		if attempt < e.putAttempts {
			select {
			case <-ctx.Done():
				return nil, storageError(ctx.Err(), "payload write interrupted")
			case <-e.clock.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, storageError(lastErr, "payload write failed after %d attempts", e.putAttempts)
}

// upsertBlob performs find-or-create-or-increment for a stored
// payload inside the caller's transaction. New hashes get a fresh row
// with refcount 1; known hashes keep their row and identity, with the
// refcount bumped by one.
//
// The payload's existence is re-checked under the write lock: a sweep
// may have collected this hash between the payload write and this
// transaction. Rewriting here closes that window, because the sweeper
// needs the same lock to delete a payload.
func (e *Engine) upsertBlob(conn *sqlite.Conn, result *cas.WriteResult, content []byte, mediaType string) (BlobRef, error) {
	if !e.cas.Exists(result.Hash) {
		if _, err := e.cas.Write(content, mediaType); err != nil {
			return BlobRef{}, storageError(err, "rewrite payload %s", result.Hash)
		}
	}

	ref := BlobRef{
		Hash:        result.Hash,
		Size:        result.Size,
		StoredSize:  result.StoredSize,
		MediaType:   mediaType,
		Compression: result.Compression,
	}

	err := sqlitex.Execute(conn, `
		INSERT INTO blobs (id, hash, size, stored_size, media_type, compression, refcount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (hash) DO UPDATE SET refcount = refcount + 1
		RETURNING id, stored_size, media_type, compression, refcount`,
		&sqlitex.ExecOptions{
			Args: []any{
				uuid.NewString(),
				result.Hash.String(),
				result.Size,
				result.StoredSize,
				mediaType,
				result.Compression.String(),
				e.now().UnixNano(),
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ref.ID = stmt.ColumnText(0)
				ref.StoredSize = stmt.ColumnInt64(1)
				ref.MediaType = stmt.ColumnText(2)
				compression, err := cas.ParseCompression(stmt.ColumnText(3))
				if err != nil {
					return err
				}
				ref.Compression = compression
				ref.RefCount = stmt.ColumnInt64(4)
				return nil
			},
		})
	if err != nil {
		return BlobRef{}, storageError(err, "upsert blob %s", result.Hash)
	}
	return ref, nil
}

// ReleaseReference decrements a blob's reference count. A zero
// refcount marks the blob collectible; physical payload deletion is
// deferred to the sweeper so a crash between decrement and deletion
// cannot corrupt the count.
func (e *Engine) ReleaseReference(ctx context.Context, blobID string) error {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return storageError(err, "release reference")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageError(err, "release reference: begin transaction")
	}
	defer endTransaction(&err)

	err = e.releaseBlobReference(conn, blobID)
	return err
}

// releaseBlobReference decrements a blob refcount inside the caller's
// transaction. The CHECK constraint rejects a decrement below zero,
// which would indicate a bookkeeping bug rather than a caller error.
func (e *Engine) releaseBlobReference(conn *sqlite.Conn, blobID string) error {
	err := sqlitex.Execute(conn,
		"UPDATE blobs SET refcount = refcount - 1 WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{blobID}})
	if err != nil {
		return storageError(err, "release blob %s", blobID)
	}
	if conn.Changes() == 0 {
		return notFoundError("blob %s not found", blobID)
	}
	return nil
}

// GetBlob returns a blob's metadata row by id.
func (e *Engine) GetBlob(ctx context.Context, blobID string) (BlobRef, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return BlobRef{}, storageError(err, "get blob")
	}
	defer e.pool.Put(conn)

	return getBlob(conn, blobID)
}

func getBlob(conn *sqlite.Conn, blobID string) (BlobRef, error) {
	var ref BlobRef
	found := false

	err := sqlitex.Execute(conn, `
		SELECT id, hash, size, stored_size, media_type, compression, refcount
		FROM blobs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{blobID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				ref.ID = stmt.ColumnText(0)
				hash, err := cas.ParseHash(stmt.ColumnText(1))
				if err != nil {
					return err
				}
				ref.Hash = hash
				ref.Size = stmt.ColumnInt64(2)
				ref.StoredSize = stmt.ColumnInt64(3)
				ref.MediaType = stmt.ColumnText(4)
				compression, err := cas.ParseCompression(stmt.ColumnText(5))
				if err != nil {
					return err
				}
				ref.Compression = compression
				ref.RefCount = stmt.ColumnInt64(6)
				return nil
			},
		})
	if err != nil {
		return BlobRef{}, storageError(err, "get blob %s", blobID)
	}
	if !found {
		return BlobRef{}, notFoundError("blob %s not found", blobID)
	}
	return ref, nil
}
