// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/cask-engine/cask/lib/engine"
)

func (a *API) handleCreateHandoff(w http.ResponseWriter, r *http.Request) {
	var request createHandoffRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	handoff, err := a.engine.CreateHandoff(r.Context(), engine.CreateHandoffParams{
		ArtifactID:      request.ArtifactID,
		VersionNumber:   request.VersionNumber,
		Target:          request.Target,
		ExpectsResponse: request.ExpectsResponse,
		Deadline:        request.Deadline,
		Priority:        request.Priority,
		Context:         request.Context,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	a.writeHandoff(w, r, http.StatusCreated, handoff)
}

func (a *API) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	handoff, err := a.engine.GetHandoff(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeHandoff(w, r, http.StatusOK, handoff)
}

func (a *API) handleAcceptHandoff(w http.ResponseWriter, r *http.Request) {
	handoff, err := a.engine.AcceptHandoff(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeHandoff(w, r, http.StatusOK, handoff)
}

func (a *API) handleCompleteHandoff(w http.ResponseWriter, r *http.Request) {
	// Completion requires a response artifact reference; the engine
	// rejects an empty one.
	var request completeHandoffRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	handoff, err := a.engine.CompleteHandoff(r.Context(), r.PathValue("id"), request.ResponseArtifactID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeHandoff(w, r, http.StatusOK, handoff)
}

func (a *API) handleCancelHandoff(w http.ResponseWriter, r *http.Request) {
	handoff, err := a.engine.CancelHandoff(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeHandoff(w, r, http.StatusOK, handoff)
}

func (a *API) handleListHandoffs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := engine.HandoffFilter{
		Target:     query.Get("target"),
		ArtifactID: query.Get("artifact_id"),
	}
	if status := query.Get("status"); status != "" {
		parsed, err := engine.ParseHandoffStatus(status)
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
		filter.Status = parsed
	}
	var err error
	if filter.Limit, err = queryInt(query.Get("limit")); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid limit: %v", err)
		return
	}

	handoffs, err := a.engine.ListHandoffs(r.Context(), filter)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	bodies := make([]handoffBody, len(handoffs))
	for i := range handoffs {
		body, err := handoffToBody(&handoffs[i])
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
		bodies[i] = body
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"handoffs": bodies})
}

func (a *API) writeHandoff(w http.ResponseWriter, r *http.Request, status int, handoff *engine.Handoff) {
	body, err := handoffToBody(handoff)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, status, body)
}
