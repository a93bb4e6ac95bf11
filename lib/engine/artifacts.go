// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// artifactColumns is the canonical column list for artifact scans.
// scanArtifact depends on this order.
const artifactColumns = `id, tenant, external_id, kind, title, summary,
	current_version, version_count, producer_id, producer_role, framework,
	session_id, task_id, model, retention_class, visibility, status,
	expires_at, created_at, updated_at`

// versionColumns is the canonical column list for version scans.
// scanVersion depends on this order.
const versionColumns = `id, artifact_id, number, blob_id, media_type,
	encoding, size, token_count, change_summary, created_by, created_at`

// CreateArtifactParams holds the inputs for creating an artifact and
// its first version.
type CreateArtifactParams struct {
	Tenant     string // required
	ExternalID string // optional, unique per tenant
	Kind       string // required, the declared artifact type
	Title      string // required
	Summary    string

	Content    []byte // required
	MediaType  string
	Encoding   string
	TokenCount int64

	CreatedBy  string
	Provenance Provenance

	RetentionClass string // defaults to "standard"
	Visibility     string // defaults to "tenant"
	Tags           []string

	// ExpiresAt sets the retention expiry. Zero means no expiry.
	ExpiresAt time.Time
}

// AppendVersionParams holds the inputs for appending a version to an
// existing artifact.
type AppendVersionParams struct {
	Content       []byte // required
	MediaType     string
	Encoding      string
	TokenCount    int64
	ChangeSummary string
	CreatedBy     string
}

// CreateArtifact creates an artifact and its first version (number 1)
// atomically with the blob put. The payload is written to the
// content-addressed store before the transaction; all metadata rows
// commit or none do.
func (e *Engine) CreateArtifact(ctx context.Context, params CreateArtifactParams) (*Artifact, *Version, error) {
	if params.Tenant == "" {
		return nil, nil, validationError("tenant is required")
	}
	if params.Kind == "" {
		return nil, nil, validationError("kind is required")
	}
	if params.Title == "" {
		return nil, nil, validationError("title is required")
	}
	if len(params.Content) == 0 {
		return nil, nil, validationError("content must not be empty")
	}

	retention := params.RetentionClass
	if retention == "" {
		retention = "standard"
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = "tenant"
	}

	result, err := e.writePayload(ctx, params.Content, params.MediaType)
	if err != nil {
		return nil, nil, err
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, nil, storageError(err, "create artifact")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, nil, storageError(err, "create artifact: begin transaction")
	}
	defer endTransaction(&err)

	// Reject a duplicate producer-supplied identifier up front. The
	// partial unique index backstops this check.
	if params.ExternalID != "" {
		duplicate, checkErr := externalIDExists(conn, params.Tenant, params.ExternalID)
		if checkErr != nil {
			err = checkErr
			return nil, nil, err
		}
		if duplicate {
			err = conflictError("external id %q already exists for tenant %q",
				params.ExternalID, params.Tenant)
			return nil, nil, err
		}
	}

	blob, err := e.upsertBlob(conn, result, params.Content, params.MediaType)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	artifact := &Artifact{
		ID:             uuid.NewString(),
		Tenant:         params.Tenant,
		ExternalID:     params.ExternalID,
		Kind:           params.Kind,
		Title:          params.Title,
		Summary:        params.Summary,
		CurrentVersion: 1,
		VersionCount:   1,
		Provenance:     params.Provenance,
		RetentionClass: retention,
		Visibility:     visibility,
		Status:         StatusDraft,
		Tags:           params.Tags,
		ExpiresAt:      params.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO artifacts (id, tenant, external_id, kind, title, summary,
			current_version, version_count, producer_id, producer_role,
			framework, session_id, task_id, model, retention_class,
			visibility, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				artifact.ID,
				artifact.Tenant,
				nullableText(artifact.ExternalID),
				artifact.Kind,
				artifact.Title,
				nullableText(artifact.Summary),
				artifact.CurrentVersion,
				artifact.VersionCount,
				nullableText(params.Provenance.ProducerID),
				nullableText(params.Provenance.ProducerRole),
				nullableText(params.Provenance.Framework),
				nullableText(params.Provenance.SessionID),
				nullableText(params.Provenance.TaskID),
				nullableText(params.Provenance.Model),
				artifact.RetentionClass,
				artifact.Visibility,
				string(artifact.Status),
				nullableNanos(artifact.ExpiresAt),
				now.UnixNano(),
				now.UnixNano(),
			},
		})
	if err != nil {
		err = storageError(err, "insert artifact")
		return nil, nil, err
	}

	version, err := e.insertVersion(conn, artifact.ID, 1, blob.ID, params.MediaType,
		params.Encoding, result.Size, params.TokenCount, "", params.CreatedBy)
	if err != nil {
		return nil, nil, err
	}

	if err = replaceTags(conn, artifact.ID, params.Tags); err != nil {
		return nil, nil, err
	}

	return artifact, version, nil
}

// AppendVersion appends the next version to an artifact. The read of
// the current version count, the version insert, and the pointer move
// all happen in one IMMEDIATE transaction, so concurrent appends
// against the same artifact serialize to consecutive numbers. The
// UNIQUE(artifact_id, number) constraint backstops the invariant.
func (e *Engine) AppendVersion(ctx context.Context, artifactID string, params AppendVersionParams) (*Version, error) {
	if len(params.Content) == 0 {
		return nil, validationError("content must not be empty")
	}

	result, err := e.writePayload(ctx, params.Content, params.MediaType)
	if err != nil {
		return nil, err
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "append version")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageError(err, "append version: begin transaction")
	}
	defer endTransaction(&err)

	artifact, err := getArtifact(conn, artifactID)
	if err != nil {
		return nil, err
	}

	blob, err := e.upsertBlob(conn, result, params.Content, params.MediaType)
	if err != nil {
		return nil, err
	}

	next := artifact.VersionCount + 1
	version, err := e.insertVersion(conn, artifactID, next, blob.ID, params.MediaType,
		params.Encoding, result.Size, params.TokenCount, params.ChangeSummary, params.CreatedBy)
	if err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn, `
		UPDATE artifacts SET current_version = ?, version_count = ?, updated_at = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{next, next, e.now().UnixNano(), artifactID},
		})
	if err != nil {
		err = storageError(err, "advance artifact %s", artifactID)
		return nil, err
	}

	return version, nil
}

// insertVersion writes a version row inside the caller's transaction.
func (e *Engine) insertVersion(conn *sqlite.Conn, artifactID string, number int64,
	blobID, mediaType, encoding string, size, tokenCount int64,
	changeSummary, createdBy string) (*Version, error) {

	version := &Version{
		ID:            uuid.NewString(),
		ArtifactID:    artifactID,
		Number:        number,
		BlobID:        blobID,
		MediaType:     mediaType,
		Encoding:      encoding,
		Size:          size,
		TokenCount:    tokenCount,
		ChangeSummary: changeSummary,
		CreatedBy:     createdBy,
		CreatedAt:     e.now(),
	}

	err := sqlitex.Execute(conn, `
		INSERT INTO versions (id, artifact_id, number, blob_id, media_type,
			encoding, size, token_count, change_summary, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				version.ID,
				version.ArtifactID,
				version.Number,
				version.BlobID,
				version.MediaType,
				nullableText(version.Encoding),
				version.Size,
				nullableInt(version.TokenCount),
				nullableText(version.ChangeSummary),
				nullableText(version.CreatedBy),
				version.CreatedAt.UnixNano(),
			},
		})
	if err != nil {
		return nil, storageError(err, "insert version %d for artifact %s", number, artifactID)
	}
	return version, nil
}

// GetArtifact returns an artifact with its tags.
func (e *Engine) GetArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "get artifact")
	}
	defer e.pool.Put(conn)

	artifact, err := getArtifact(conn, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Tags, err = loadTags(conn, artifactID); err != nil {
		return nil, err
	}
	return artifact, nil
}

// GetCurrent resolves an artifact's current-version pointer.
func (e *Engine) GetCurrent(ctx context.Context, artifactID string) (*Version, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "get current version")
	}
	defer e.pool.Put(conn)

	artifact, err := getArtifact(conn, artifactID)
	if err != nil {
		return nil, err
	}
	return getVersion(conn, artifactID, artifact.CurrentVersion)
}

// GetVersion returns a specific version of an artifact by number.
func (e *Engine) GetVersion(ctx context.Context, artifactID string, number int64) (*Version, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "get version")
	}
	defer e.pool.Put(conn)

	return getVersion(conn, artifactID, number)
}

// ListVersions returns all versions of an artifact, oldest first.
func (e *Engine) ListVersions(ctx context.Context, artifactID string) ([]Version, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "list versions")
	}
	defer e.pool.Put(conn)

	if _, err := getArtifact(conn, artifactID); err != nil {
		return nil, err
	}

	var versions []Version
	err = sqlitex.Execute(conn,
		"SELECT "+versionColumns+" FROM versions WHERE artifact_id = ? ORDER BY number",
		&sqlitex.ExecOptions{
			Args: []any{artifactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				versions = append(versions, scanVersion(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "list versions for artifact %s", artifactID)
	}
	return versions, nil
}

// Content reads a version's payload from the content-addressed store,
// decompresses it, and verifies the content hash before returning.
// A number of zero or less resolves the artifact's current version.
func (e *Engine) Content(ctx context.Context, artifactID string, number int64) ([]byte, BlobRef, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, BlobRef{}, storageError(err, "read content")
	}
	defer e.pool.Put(conn)

	var version *Version
	if number <= 0 {
		artifact, getErr := getArtifact(conn, artifactID)
		if getErr != nil {
			return nil, BlobRef{}, getErr
		}
		version, err = getVersion(conn, artifactID, artifact.CurrentVersion)
	} else {
		version, err = getVersion(conn, artifactID, number)
	}
	if err != nil {
		return nil, BlobRef{}, err
	}

	blob, err := getBlob(conn, version.BlobID)
	if err != nil {
		return nil, BlobRef{}, err
	}

	content, err := e.cas.Read(blob.Hash, blob.Compression, blob.Size)
	if err != nil {
		return nil, BlobRef{}, storageError(err, "read payload %s", blob.Hash)
	}
	return content, blob, nil
}

// PatchParams holds a metadata-only mutation. Nil fields are left
// unchanged. Patching never creates a version.
type PatchParams struct {
	Title   *string
	Summary *string
	Status  *ArtifactStatus
	Tags    *[]string
}

// PatchArtifact applies a metadata-only mutation to an artifact.
func (e *Engine) PatchArtifact(ctx context.Context, artifactID string, patch PatchParams) (*Artifact, error) {
	if patch.Status != nil {
		if _, err := ParseArtifactStatus(string(*patch.Status)); err != nil {
			return nil, err
		}
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "patch artifact")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageError(err, "patch artifact: begin transaction")
	}
	defer endTransaction(&err)

	artifact, err := getArtifact(conn, artifactID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		artifact.Title = *patch.Title
	}
	if patch.Summary != nil {
		artifact.Summary = *patch.Summary
	}
	if patch.Status != nil {
		artifact.Status = *patch.Status
	}
	artifact.UpdatedAt = e.now()

	err = sqlitex.Execute(conn, `
		UPDATE artifacts SET title = ?, summary = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				artifact.Title,
				nullableText(artifact.Summary),
				string(artifact.Status),
				artifact.UpdatedAt.UnixNano(),
				artifactID,
			},
		})
	if err != nil {
		err = storageError(err, "patch artifact %s", artifactID)
		return nil, err
	}

	if patch.Tags != nil {
		if err = clearTags(conn, artifactID); err != nil {
			return nil, err
		}
		if err = replaceTags(conn, artifactID, *patch.Tags); err != nil {
			return nil, err
		}
		artifact.Tags = *patch.Tags
	} else {
		if artifact.Tags, err = loadTags(conn, artifactID); err != nil {
			return nil, err
		}
	}

	return artifact, nil
}

// DeleteArtifact removes an artifact and everything that hangs off
// it as one atomic unit: a blob reference is released per version,
// then versions, tags, relationships, and handoffs are deleted, then
// the artifact row itself. Handoffs elsewhere that recorded this
// artifact as their response lose the link but keep their state.
//
// Blob payloads are not touched here. Zero-refcount blobs are
// collected by the sweeper.
func (e *Engine) DeleteArtifact(ctx context.Context, artifactID string) error {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return storageError(err, "delete artifact")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageError(err, "delete artifact: begin transaction")
	}
	defer endTransaction(&err)

	if _, err = getArtifact(conn, artifactID); err != nil {
		return err
	}

	// One release per version row, including versions that share a
	// blob: the refcount counts referencing versions, not artifacts.
	var blobIDs []string
	err = sqlitex.Execute(conn,
		"SELECT blob_id FROM versions WHERE artifact_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{artifactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blobIDs = append(blobIDs, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		err = storageError(err, "collect blob references for artifact %s", artifactID)
		return err
	}
	for _, blobID := range blobIDs {
		if err = e.releaseBlobReference(conn, blobID); err != nil {
			return err
		}
	}

	deletions := []struct {
		query string
		args  []any
	}{
		{"UPDATE handoffs SET response_artifact_id = NULL WHERE response_artifact_id = ?", []any{artifactID}},
		{"DELETE FROM handoffs WHERE artifact_id = ?", []any{artifactID}},
		{"DELETE FROM relationships WHERE parent_id = ? OR child_id = ?", []any{artifactID, artifactID}},
		{"DELETE FROM tags WHERE artifact_id = ?", []any{artifactID}},
		{"DELETE FROM versions WHERE artifact_id = ?", []any{artifactID}},
		{"DELETE FROM artifacts WHERE id = ?", []any{artifactID}},
	}
	for _, deletion := range deletions {
		if err = sqlitex.Execute(conn, deletion.query, &sqlitex.ExecOptions{Args: deletion.args}); err != nil {
			err = storageError(err, "delete artifact %s", artifactID)
			return err
		}
	}

	return nil
}

// ArtifactFilter specifies list criteria. Zero-valued fields are not
// applied.
type ArtifactFilter struct {
	Tenant     string
	SessionID  string
	TaskID     string
	ProducerID string
	Kind       string
	Status     ArtifactStatus
	Limit      int // default 100
	Offset     int
}

// ListArtifacts returns artifacts matching the filter, newest first.
// Tags are loaded per artifact.
func (e *Engine) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]Artifact, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "list artifacts")
	}
	defer e.pool.Put(conn)

	var conditions []string
	var args []any

	if filter.Tenant != "" {
		conditions = append(conditions, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.TaskID != "" {
		conditions = append(conditions, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.ProducerID != "" {
		conditions = append(conditions, "producer_id = ?")
		args = append(args, filter.ProducerID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + artifactColumns + " FROM artifacts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	var artifacts []Artifact
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			artifacts = append(artifacts, *scanArtifact(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, storageError(err, "list artifacts")
	}

	for i := range artifacts {
		if artifacts[i].Tags, err = loadTags(conn, artifacts[i].ID); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

func externalIDExists(conn *sqlite.Conn, tenant, externalID string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn,
		"SELECT 1 FROM artifacts WHERE tenant = ? AND external_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{tenant, externalID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return false, storageError(err, "check external id")
	}
	return exists, nil
}

func getArtifact(conn *sqlite.Conn, artifactID string) (*Artifact, error) {
	var artifact *Artifact
	err := sqlitex.Execute(conn,
		"SELECT "+artifactColumns+" FROM artifacts WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{artifactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				artifact = scanArtifact(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "get artifact %s", artifactID)
	}
	if artifact == nil {
		return nil, notFoundError("artifact %s not found", artifactID)
	}
	return artifact, nil
}

func scanArtifact(stmt *sqlite.Stmt) *Artifact {
	// Columns per artifactColumns: id(0), tenant(1), external_id(2),
	// kind(3), title(4), summary(5), current_version(6),
	// version_count(7), producer_id(8), producer_role(9),
	// framework(10), session_id(11), task_id(12), model(13),
	// retention_class(14), visibility(15), status(16), expires_at(17),
	// created_at(18), updated_at(19)
	return &Artifact{
		ID:             stmt.ColumnText(0),
		Tenant:         stmt.ColumnText(1),
		ExternalID:     stmt.ColumnText(2),
		Kind:           stmt.ColumnText(3),
		Title:          stmt.ColumnText(4),
		Summary:        stmt.ColumnText(5),
		CurrentVersion: stmt.ColumnInt64(6),
		VersionCount:   stmt.ColumnInt64(7),
		Provenance: Provenance{
			ProducerID:   stmt.ColumnText(8),
			ProducerRole: stmt.ColumnText(9),
			Framework:    stmt.ColumnText(10),
			SessionID:    stmt.ColumnText(11),
			TaskID:       stmt.ColumnText(12),
			Model:        stmt.ColumnText(13),
		},
		RetentionClass: stmt.ColumnText(14),
		Visibility:     stmt.ColumnText(15),
		Status:         ArtifactStatus(stmt.ColumnText(16)),
		ExpiresAt:      timestampColumn(stmt, 17),
		CreatedAt:      timestampColumn(stmt, 18),
		UpdatedAt:      timestampColumn(stmt, 19),
	}
}

func getVersion(conn *sqlite.Conn, artifactID string, number int64) (*Version, error) {
	var version *Version
	err := sqlitex.Execute(conn,
		"SELECT "+versionColumns+" FROM versions WHERE artifact_id = ? AND number = ?",
		&sqlitex.ExecOptions{
			Args: []any{artifactID, number},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned := scanVersion(stmt)
				version = &scanned
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "get version %d of artifact %s", number, artifactID)
	}
	if version == nil {
		return nil, notFoundError("version %d of artifact %s not found", number, artifactID)
	}
	return version, nil
}

func scanVersion(stmt *sqlite.Stmt) Version {
	// Columns per versionColumns: id(0), artifact_id(1), number(2),
	// blob_id(3), media_type(4), encoding(5), size(6), token_count(7),
	// change_summary(8), created_by(9), created_at(10)
	return Version{
		ID:            stmt.ColumnText(0),
		ArtifactID:    stmt.ColumnText(1),
		Number:        stmt.ColumnInt64(2),
		BlobID:        stmt.ColumnText(3),
		MediaType:     stmt.ColumnText(4),
		Encoding:      stmt.ColumnText(5),
		Size:          stmt.ColumnInt64(6),
		TokenCount:    stmt.ColumnInt64(7),
		ChangeSummary: stmt.ColumnText(8),
		CreatedBy:     stmt.ColumnText(9),
		CreatedAt:     timestampColumn(stmt, 10),
	}
}

func loadTags(conn *sqlite.Conn, artifactID string) ([]string, error) {
	var tags []string
	err := sqlitex.Execute(conn,
		"SELECT tag FROM tags WHERE artifact_id = ? ORDER BY tag",
		&sqlitex.ExecOptions{
			Args: []any{artifactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tags = append(tags, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "load tags for artifact %s", artifactID)
	}
	return tags, nil
}

func clearTags(conn *sqlite.Conn, artifactID string) error {
	err := sqlitex.Execute(conn,
		"DELETE FROM tags WHERE artifact_id = ?",
		&sqlitex.ExecOptions{Args: []any{artifactID}})
	if err != nil {
		return storageError(err, "clear tags for artifact %s", artifactID)
	}
	return nil
}

func replaceTags(conn *sqlite.Conn, artifactID string, tags []string) error {
	for _, tag := range tags {
		err := sqlitex.Execute(conn,
			"INSERT OR IGNORE INTO tags (artifact_id, tag) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{artifactID, tag}})
		if err != nil {
			return storageError(err, "tag artifact %s", artifactID)
		}
	}
	return nil
}
