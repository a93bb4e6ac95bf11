// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cask-engine/cask/lib/engine"
)

func (a *API) handleLink(w http.ResponseWriter, r *http.Request) {
	var request linkRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	rel, err := a.engine.Link(r.Context(), engine.LinkParams{
		ParentID:      request.ParentID,
		ChildID:       request.ChildID,
		Kind:          engine.RelationshipKind(request.Kind),
		ParentVersion: request.ParentVersion,
		ChildVersion:  request.ChildVersion,
		Context:       request.Context,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	body, err := relationshipToBody(rel)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, body)
}

func (a *API) handleLineage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	direction := query.Get("direction")
	if direction == "" {
		direction = "ancestors"
	}

	var depth int
	if raw := query.Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			a.sendError(w, http.StatusBadRequest, "invalid depth: %q", raw)
			return
		}
		depth = parsed
	}

	artifactID := r.PathValue("id")

	var entries []engine.LineageEntry
	var err error
	switch direction {
	case "ancestors":
		entries, err = a.engine.Ancestors(r.Context(), artifactID, depth)
	case "descendants":
		entries, err = a.engine.Descendants(r.Context(), artifactID, depth)
	default:
		a.sendError(w, http.StatusBadRequest, "direction must be ancestors or descendants, got %q", direction)
		return
	}
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	body := lineageBody{
		ArtifactID: artifactID,
		Direction:  direction,
		Entries:    make([]lineageEntry, len(entries)),
	}
	for i := range entries {
		relBody, err := relationshipToBody(&entries[i].Relationship)
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
		body.Entries[i] = lineageEntry{
			ArtifactID:   entries[i].ArtifactID,
			Depth:        entries[i].Depth,
			Relationship: relBody,
		}
	}
	a.writeJSON(w, http.StatusOK, body)
}
