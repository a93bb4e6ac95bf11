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

	"github.com/cask-engine/cask/lib/codec"
)

// CreateHandoffParams holds the inputs for creating a handoff.
type CreateHandoffParams struct {
	ArtifactID string // required
	Target     string // required, the producer or role addressed

	// VersionNumber optionally pins the handoff to a specific
	// version. Zero means the handoff tracks the current version.
	VersionNumber int64

	// ExpectsResponse marks the handoff as requiring a response
	// artifact. Only response-expecting handoffs with a deadline are
	// subject to expiry.
	ExpectsResponse bool

	// Deadline is the response deadline. Zero means none.
	Deadline time.Time

	// Priority defaults to "normal".
	Priority string

	// Context is a free-form payload, stored canonically encoded.
	Context any
}

// CreateHandoff creates a handoff in the pending state.
func (e *Engine) CreateHandoff(ctx context.Context, params CreateHandoffParams) (*Handoff, error) {
	if params.ArtifactID == "" {
		return nil, validationError("artifact id is required")
	}
	if params.Target == "" {
		return nil, validationError("target is required")
	}

	priority := params.Priority
	if priority == "" {
		priority = "normal"
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
		return nil, storageError(err, "create handoff")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageError(err, "create handoff: begin transaction")
	}
	defer endTransaction(&err)

	artifact, err := getArtifact(conn, params.ArtifactID)
	if err != nil {
		return nil, err
	}
	if params.VersionNumber > 0 && params.VersionNumber > artifact.VersionCount {
		err = notFoundError("version %d of artifact %s not found",
			params.VersionNumber, params.ArtifactID)
		return nil, err
	}

	now := e.now()
	handoff := &Handoff{
		ID:              uuid.NewString(),
		ArtifactID:      params.ArtifactID,
		VersionNumber:   params.VersionNumber,
		Target:          params.Target,
		ExpectsResponse: params.ExpectsResponse,
		Deadline:        params.Deadline,
		Priority:        priority,
		Context:         contextBytes,
		Status:          HandoffPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO handoffs (id, artifact_id, version_number, target,
			expects_response, deadline, priority, context, status,
			response_artifact_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				handoff.ID,
				handoff.ArtifactID,
				nullableInt(handoff.VersionNumber),
				handoff.Target,
				boolToInt(handoff.ExpectsResponse),
				nullableNanos(handoff.Deadline),
				handoff.Priority,
				nullableBlob(handoff.Context),
				string(handoff.Status),
				now.UnixNano(),
				now.UnixNano(),
			},
		})
	if err != nil {
		err = storageError(err, "insert handoff")
		return nil, err
	}

	return handoff, nil
}

// AcceptHandoff moves a handoff from pending to accepted.
func (e *Engine) AcceptHandoff(ctx context.Context, handoffID string) (*Handoff, error) {
	return e.transitionHandoff(ctx, handoffID, HandoffAccepted, "")
}

// CompleteHandoff records the response artifact and moves the handoff
// to completed. Valid from pending or accepted. A completion racing
// the expiry scan resolves to whichever transition commits first; the
// loser gets a conflict error.
func (e *Engine) CompleteHandoff(ctx context.Context, handoffID, responseArtifactID string) (*Handoff, error) {
	if responseArtifactID == "" {
		return nil, validationError("response artifact id is required")
	}
	return e.transitionHandoff(ctx, handoffID, HandoffCompleted, responseArtifactID)
}

// CancelHandoff moves a handoff to cancelled. Valid from pending or
// accepted; source-initiated.
func (e *Engine) CancelHandoff(ctx context.Context, handoffID string) (*Handoff, error) {
	return e.transitionHandoff(ctx, handoffID, HandoffCancelled, "")
}

// transitionHandoff applies a caller-driven state transition inside
// one IMMEDIATE transaction: read current state, validate, write.
func (e *Engine) transitionHandoff(ctx context.Context, handoffID string, proposed HandoffStatus, responseArtifactID string) (*Handoff, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "transition handoff")
	}
	defer e.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageError(err, "transition handoff: begin transaction")
	}
	defer endTransaction(&err)

	handoff, err := getHandoff(conn, handoffID)
	if err != nil {
		return nil, err
	}

	if err = validateHandoffTransition(handoff.Status, proposed); err != nil {
		return nil, err
	}

	if responseArtifactID != "" {
		if _, err = getArtifact(conn, responseArtifactID); err != nil {
			return nil, err
		}
	}

	handoff.Status = proposed
	handoff.ResponseArtifactID = responseArtifactID
	handoff.UpdatedAt = e.now()

	err = sqlitex.Execute(conn, `
		UPDATE handoffs SET status = ?, response_artifact_id = ?, updated_at = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(proposed),
				nullableText(responseArtifactID),
				handoff.UpdatedAt.UnixNano(),
				handoffID,
			},
		})
	if err != nil {
		err = storageError(err, "transition handoff %s", handoffID)
		return nil, err
	}

	return handoff, nil
}

// validateHandoffTransition enforces the handoff state machine:
// pending → accepted → completed, pending → expired,
// pending/accepted → cancelled. Terminal states admit nothing.
func validateHandoffTransition(current, proposed HandoffStatus) error {
	valid := false
	switch proposed {
	case HandoffAccepted:
		valid = current == HandoffPending
	case HandoffCompleted:
		valid = current == HandoffPending || current == HandoffAccepted
	case HandoffCancelled:
		valid = current == HandoffPending || current == HandoffAccepted
	case HandoffExpired:
		valid = current == HandoffPending
	}
	if !valid {
		return conflictError("invalid handoff transition: %s → %s", current, proposed)
	}
	return nil
}

// ExpireDue moves every pending, response-expecting handoff whose
// deadline has passed to expired, as a single conditional UPDATE.
// SQLite serializes writers, so a completion committing first makes
// the handoff invisible to this scan, and vice versa: first
// committing transition wins. Returns the number of handoffs expired.
func (e *Engine) ExpireDue(ctx context.Context) (int, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return 0, storageError(err, "expire handoffs")
	}
	defer e.pool.Put(conn)

	now := e.now()
	err = sqlitex.Execute(conn, `
		UPDATE handoffs SET status = ?, updated_at = ?
		WHERE status = ? AND expects_response = 1
			AND deadline IS NOT NULL AND deadline < ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(HandoffExpired),
				now.UnixNano(),
				string(HandoffPending),
				now.UnixNano(),
			},
		})
	if err != nil {
		return 0, storageError(err, "expire handoffs")
	}
	return conn.Changes(), nil
}

// GetHandoff returns a handoff by id.
func (e *Engine) GetHandoff(ctx context.Context, handoffID string) (*Handoff, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "get handoff")
	}
	defer e.pool.Put(conn)

	return getHandoff(conn, handoffID)
}

// HandoffFilter specifies list criteria. Zero-valued fields are not
// applied.
type HandoffFilter struct {
	Target     string
	ArtifactID string
	Status     HandoffStatus
	Limit      int // default 100
}

// ListHandoffs returns handoffs matching the filter, newest first.
func (e *Engine) ListHandoffs(ctx context.Context, filter HandoffFilter) ([]Handoff, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, storageError(err, "list handoffs")
	}
	defer e.pool.Put(conn)

	var conditions []string
	var args []any

	if filter.Target != "" {
		conditions = append(conditions, "target = ?")
		args = append(args, filter.Target)
	}
	if filter.ArtifactID != "" {
		conditions = append(conditions, "artifact_id = ?")
		args = append(args, filter.ArtifactID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + handoffColumns + " FROM handoffs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var handoffs []Handoff
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			handoffs = append(handoffs, scanHandoff(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, storageError(err, "list handoffs")
	}
	return handoffs, nil
}

// handoffColumns is the canonical column list for handoff scans.
// scanHandoff depends on this order.
const handoffColumns = `id, artifact_id, version_number, target,
	expects_response, deadline, priority, context, status,
	response_artifact_id, created_at, updated_at`

func getHandoff(conn *sqlite.Conn, handoffID string) (*Handoff, error) {
	var handoff *Handoff
	err := sqlitex.Execute(conn,
		"SELECT "+handoffColumns+" FROM handoffs WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{handoffID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned := scanHandoff(stmt)
				handoff = &scanned
				return nil
			},
		})
	if err != nil {
		return nil, storageError(err, "get handoff %s", handoffID)
	}
	if handoff == nil {
		return nil, notFoundError("handoff %s not found", handoffID)
	}
	return handoff, nil
}

func scanHandoff(stmt *sqlite.Stmt) Handoff {
	// Columns per handoffColumns: id(0), artifact_id(1),
	// version_number(2), target(3), expects_response(4), deadline(5),
	// priority(6), context(7), status(8), response_artifact_id(9),
	// created_at(10), updated_at(11)
	handoff := Handoff{
		ID:                 stmt.ColumnText(0),
		ArtifactID:         stmt.ColumnText(1),
		VersionNumber:      stmt.ColumnInt64(2),
		Target:             stmt.ColumnText(3),
		ExpectsResponse:    stmt.ColumnInt(4) != 0,
		Deadline:           timestampColumn(stmt, 5),
		Priority:           stmt.ColumnText(6),
		Status:             HandoffStatus(stmt.ColumnText(8)),
		ResponseArtifactID: stmt.ColumnText(9),
		CreatedAt:          timestampColumn(stmt, 10),
		UpdatedAt:          timestampColumn(stmt, 11),
	}
	if !stmt.ColumnIsNull(7) {
		context := make([]byte, stmt.ColumnLen(7))
		stmt.ColumnBytes(7, context)
		handoff.Context = context
	}
	return handoff
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
