// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

// schema holds the engine's relations. Applied on every connection via
// the pool's OnConnect hook; all statements are idempotent.
//
// Timestamps are Unix nanoseconds (INTEGER). Hashes are hex text.
// Context payloads are canonical CBOR (BLOB), so equality of semantics
// is equality of bytes.
const schema = `
	CREATE TABLE IF NOT EXISTS blobs (
		id          TEXT PRIMARY KEY,
		hash        TEXT NOT NULL UNIQUE,
		size        INTEGER NOT NULL,
		stored_size INTEGER NOT NULL,
		media_type  TEXT NOT NULL,
		compression TEXT NOT NULL,
		refcount    INTEGER NOT NULL CHECK (refcount >= 0),
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blobs_refcount ON blobs(refcount);

	CREATE TABLE IF NOT EXISTS artifacts (
		id              TEXT PRIMARY KEY,
		tenant          TEXT NOT NULL,
		external_id     TEXT,
		kind            TEXT NOT NULL,
		title           TEXT NOT NULL,
		summary         TEXT,
		current_version INTEGER NOT NULL,
		version_count   INTEGER NOT NULL,
		producer_id     TEXT,
		producer_role   TEXT,
		framework       TEXT,
		session_id      TEXT,
		task_id         TEXT,
		model           TEXT,
		retention_class TEXT NOT NULL,
		visibility      TEXT NOT NULL,
		status          TEXT NOT NULL,
		expires_at      INTEGER,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_external
		ON artifacts(tenant, external_id) WHERE external_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_artifacts_tenant ON artifacts(tenant, created_at);
	CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_expiry ON artifacts(expires_at)
		WHERE expires_at IS NOT NULL;

	CREATE TABLE IF NOT EXISTS versions (
		id             TEXT PRIMARY KEY,
		artifact_id    TEXT NOT NULL REFERENCES artifacts(id),
		number         INTEGER NOT NULL,
		blob_id        TEXT NOT NULL REFERENCES blobs(id),
		media_type     TEXT NOT NULL,
		encoding       TEXT,
		size           INTEGER NOT NULL,
		token_count    INTEGER,
		change_summary TEXT,
		created_by     TEXT,
		created_at     INTEGER NOT NULL,
		UNIQUE (artifact_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_blob ON versions(blob_id);

	CREATE TABLE IF NOT EXISTS relationships (
		id             TEXT PRIMARY KEY,
		parent_id      TEXT NOT NULL REFERENCES artifacts(id),
		child_id       TEXT NOT NULL REFERENCES artifacts(id),
		kind           TEXT NOT NULL,
		parent_version INTEGER,
		child_version  INTEGER,
		context        BLOB,
		created_at     INTEGER NOT NULL,
		UNIQUE (parent_id, child_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_child ON relationships(child_id);

	CREATE TABLE IF NOT EXISTS handoffs (
		id                   TEXT PRIMARY KEY,
		artifact_id          TEXT NOT NULL REFERENCES artifacts(id),
		version_number       INTEGER,
		target               TEXT NOT NULL,
		expects_response     INTEGER NOT NULL,
		deadline             INTEGER,
		priority             TEXT NOT NULL,
		context              BLOB,
		status               TEXT NOT NULL,
		response_artifact_id TEXT REFERENCES artifacts(id),
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_handoffs_target ON handoffs(target, status);
	CREATE INDEX IF NOT EXISTS idx_handoffs_due ON handoffs(status, deadline)
		WHERE deadline IS NOT NULL;

	CREATE TABLE IF NOT EXISTS tags (
		artifact_id TEXT NOT NULL REFERENCES artifacts(id),
		tag         TEXT NOT NULL,
		UNIQUE (artifact_id, tag)
	);
`
