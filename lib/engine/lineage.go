// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cask-engine/cask/lib/codec"
)

// LinkParams holds the inputs for creating a lineage edge.
type LinkParams struct {
	ParentID string
	ChildID  string
	Kind     RelationshipKind

	// ParentVersion and ChildVersion optionally pin the edge to
	// specific version numbers. Zero means unpinned.
	ParentVersion int64
	ChildVersion  int64

	// Context is a free-form payload encoded canonically, so that
	// re-linking with identical semantics compares equal byte for
	// byte. Nil means no context.
	Context any
}

// Link records a directed, typed edge between two artifacts. Both
// endpoints must exist. At most one edge of a given kind exists per
// ordered pair: re-linking with identical version pins and context is
// a no-op returning the existing edge, while a re-link that changes
// pins or context is a conflict.
func (e *Engine) Link(ctx context.Context, params LinkParams) (*Relationship, error) {
	if params.ParentID == "" || params.ChildID == "" {
		return nil, validationError("parent and child ids are required")
	}
	if _, err := ParseRelationshipKind(string(params.Kind)); err != nil {
		return nil, err
	}
	if params.ParentID == params.ChildID {
		return nil, validationError("an artifact cannot be linked to itself")
	}

	var contextBytes []byte
	if params.Context != nil {
		encoded, err := codec.Canonical(params.Context)
		if err != nil {
			return nil, validationError("context payload is not encodable: %v", err)
		}
		contextBytes = encoded
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "link artifacts")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageError(err, "link artifacts: begin transaction")
	}
	defer endTransaction(&err)

	if _, err = getArtifact(conn, params.ParentID); err != nil {
		return nil, err
	}
	if _, err = getArtifact(conn, params.ChildID); err != nil {
		return nil, err
	}

	existing, err := getRelationshipByEndpoints(conn, params.ParentID, params.ChildID, params.Kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ParentVersion == params.ParentVersion &&
			existing.ChildVersion == params.ChildVersion &&
			codec.Equal(existing.Context, contextBytes) {
			return existing, nil
		}
		err = conflictError("%s edge from %s to %s already exists with different semantics",
			params.Kind, params.ParentID, params.ChildID)
		return nil, err
	}

	relationship := &Relationship{
		ID:            uuid.NewString(),
		ParentID:      params.ParentID,
		ChildID:       params.ChildID,
		Kind:          params.Kind,
		ParentVersion: params.ParentVersion,
		ChildVersion:  params.ChildVersion,
		Context:       contextBytes,
		CreatedAt:     e.now(),
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO relationships (id, parent_id, child_id, kind,
			parent_version, child_version, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				relationship.ID,
				relationship.ParentID,
				relationship.ChildID,
				string(relationship.Kind),
				nullableInt(relationship.ParentVersion),
				nullableInt(relationship.ChildVersion),
				nullableBlob(relationship.Context),
				relationship.CreatedAt.UnixNano(),
			},
		})
	if err != nil {
		err = storageError(err, "insert relationship")
		return nil, err
	}

	return relationship, nil
}

// LineageEntry is one artifact reached during a traversal, with the
// edge that reached it and its distance from the origin.
type LineageEntry struct {
	ArtifactID   string
	Depth        int
	Relationship Relationship
}

// Ancestors traverses parent edges from an artifact, breadth first,
// up to maxDepth hops. The graph may contain cycles; each artifact is
// visited at most once and the traversal always terminates. The depth
// cutoff applies independently of cycle detection.
func (e *Engine) Ancestors(ctx context.Context, artifactID string, maxDepth int) ([]LineageEntry, error) {
	return e.traverse(ctx, artifactID, maxDepth, true)
}

// Descendants traverses child edges from an artifact, breadth first,
// up to maxDepth hops.
func (e *Engine) Descendants(ctx context.Context, artifactID string, maxDepth int) ([]LineageEntry, error) {
	return e.traverse(ctx, artifactID, maxDepth, false)
}

func (e *Engine) traverse(ctx context.Context, artifactID string, maxDepth int, toParents bool) ([]LineageEntry, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "traverse lineage")
	}
	defer e.pool.Put(conn)

	if _, err := getArtifact(conn, artifactID); err != nil {
		return nil, err
	}

	// The origin counts as visited so a cycle back to it is not
	// reported as a lineage entry.
	visited := map[string]bool{artifactID: true}
	frontier := []string{artifactID}

	var entries []LineageEntry
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := edgesFrom(conn, id, toParents)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				reached := edge.ParentID
				if !toParents {
					reached = edge.ChildID
				}
				if visited[reached] {
					continue
				}
				visited[reached] = true
				entries = append(entries, LineageEntry{
					ArtifactID:   reached,
					Depth:        depth,
					Relationship: edge,
				})
				next = append(next, reached)
			}
		}
		frontier = next
	}

	return entries, nil
}

// relationshipColumns is the canonical column list for relationship
// scans. scanRelationship depends on this order.
const relationshipColumns = `id, parent_id, child_id, kind,
	parent_version, child_version, context, created_at`

// edgesFrom returns the edges touching an artifact in the given
// direction: edges where it is the child (toParents) or the parent.
func edgesFrom(conn *sqlite.Conn, artifactID string, toParents bool) ([]Relationship, error) {
	column := "parent_id"
	if toParents {
		column = "child_id"
	}

	var edges []Relationship
	err := sqlitex.Execute(conn,
		"SELECT "+relationshipColumns+" FROM relationships WHERE "+column+" = ? ORDER BY created_at",
		&sqlitex.ExecOptions{
			Args: []any{artifactID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				edges = append(edges, scanRelationship(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "load edges for artifact %s", artifactID)
	}
	return edges, nil
}

func getRelationshipByEndpoints(conn *sqlite.Conn, parentID, childID string, kind RelationshipKind) (*Relationship, error) {
	var relationship *Relationship
	err := sqlitex.Execute(conn,
		"SELECT "+relationshipColumns+" FROM relationships WHERE parent_id = ? AND child_id = ? AND kind = ?",
		&sqlitex.ExecOptions{
			Args: []any{parentID, childID, string(kind)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned := scanRelationship(stmt)
				relationship = &scanned
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "get relationship")
	}
	return relationship, nil
}

func scanRelationship(stmt *sqlite.Stmt) Relationship {
	// Columns per relationshipColumns: id(0), parent_id(1),
	// child_id(2), kind(3), parent_version(4), child_version(5),
	// context(6), created_at(7)
	relationship := Relationship{
		ID:            stmt.ColumnText(0),
		ParentID:      stmt.ColumnText(1),
		ChildID:       stmt.ColumnText(2),
		Kind:          RelationshipKind(stmt.ColumnText(3)),
		ParentVersion: stmt.ColumnInt64(4),
		ChildVersion:  stmt.ColumnInt64(5),
		CreatedAt:     timestampColumn(stmt, 7),
	}
	if !stmt.ColumnIsNull(6) {
		context := make([]byte, stmt.ColumnLen(6))
		stmt.ColumnBytes(6, context)
		relationship.Context = context
	}
	return relationship
}
