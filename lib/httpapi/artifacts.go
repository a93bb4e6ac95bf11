// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cask-engine/cask/lib/engine"
)

func (a *API) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	var request createArtifactRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	artifact, version, err := a.engine.CreateArtifact(r.Context(), engine.CreateArtifactParams{
		Tenant:     request.Tenant,
		ExternalID: request.ExternalID,
		Kind:       request.Kind,
		Title:      request.Title,
		Summary:    request.Summary,
		Content:    request.Content,
		MediaType:  request.MediaType,
		Encoding:   request.Encoding,
		TokenCount: request.TokenCount,
		CreatedBy:  request.CreatedBy,
		Provenance: engine.Provenance{
			ProducerID:   request.Provenance.ProducerID,
			ProducerRole: request.Provenance.ProducerRole,
			Framework:    request.Provenance.Framework,
			SessionID:    request.Provenance.SessionID,
			TaskID:       request.Provenance.TaskID,
			Model:        request.Provenance.Model,
		},
		RetentionClass: request.RetentionClass,
		Visibility:     request.Visibility,
		Tags:           request.Tags,
		ExpiresAt:      request.ExpiresAt,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, createArtifactResponse{
		Artifact: artifactToBody(artifact),
		Version:  versionToBody(version),
	})
}

func (a *API) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.engine.GetArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	response := getArtifactResponse{Artifact: artifactToBody(artifact)}

	// Resolve the current version and its blob. A missing version
	// row would mean a broken invariant, so any failure here is
	// surfaced rather than degraded to metadata-only.
	current, err := a.engine.GetCurrent(r.Context(), artifact.ID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	blob, err := a.engine.GetBlob(r.Context(), current.BlobID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	currentBody := versionToBody(current)
	currentBlob := blobToBody(blob)
	response.Current = &currentBody
	response.Blob = &currentBlob

	a.writeJSON(w, http.StatusOK, response)
}

func (a *API) handlePatchArtifact(w http.ResponseWriter, r *http.Request) {
	var request patchArtifactRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	patch := engine.PatchParams{
		Title:   request.Title,
		Summary: request.Summary,
		Tags:    request.Tags,
	}
	if request.Status != nil {
		status, err := engine.ParseArtifactStatus(*request.Status)
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
		patch.Status = &status
	}

	artifact, err := a.engine.PatchArtifact(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, artifactToBody(artifact))
}

func (a *API) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteArtifact(r.Context(), r.PathValue("id")); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := engine.ArtifactFilter{
		Tenant:     query.Get("tenant"),
		SessionID:  query.Get("session_id"),
		TaskID:     query.Get("task_id"),
		ProducerID: query.Get("producer_id"),
		Kind:       query.Get("kind"),
	}
	if status := query.Get("status"); status != "" {
		parsed, err := engine.ParseArtifactStatus(status)
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
	if filter.Offset, err = queryInt(query.Get("offset")); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid offset: %v", err)
		return
	}

	artifacts, err := a.engine.ListArtifacts(r.Context(), filter)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	bodies := make([]artifactBody, len(artifacts))
	for i := range artifacts {
		bodies[i] = artifactToBody(&artifacts[i])
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"artifacts": bodies})
}

func (a *API) handleAppendVersion(w http.ResponseWriter, r *http.Request) {
	var request appendVersionRequest
	if err := a.decodeJSON(w, r, &request); err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	version, err := a.engine.AppendVersion(r.Context(), r.PathValue("id"), engine.AppendVersionParams{
		Content:       request.Content,
		MediaType:     request.MediaType,
		Encoding:      request.Encoding,
		TokenCount:    request.TokenCount,
		ChangeSummary: request.ChangeSummary,
		CreatedBy:     request.CreatedBy,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, versionToBody(version))
}

func (a *API) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.engine.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	bodies := make([]versionBody, len(versions))
	for i := range versions {
		bodies[i] = versionToBody(&versions[i])
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"versions": bodies})
}

func (a *API) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil {
		a.sendError(w, http.StatusBadRequest, "invalid version number: %v", err)
		return
	}

	version, err := a.engine.GetVersion(r.Context(), r.PathValue("id"), number)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, versionToBody(version))
}

// handleContent serves the raw payload bytes of a version with the
// stored media type. Defaults to the current version; a specific
// version is selected with ?version=N.
func (a *API) handleContent(w http.ResponseWriter, r *http.Request) {
	var number int64
	if raw := r.URL.Query().Get("version"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			a.sendError(w, http.StatusBadRequest, "invalid version number: %v", err)
			return
		}
		number = parsed
	}

	content, blob, err := a.engine.Content(r.Context(), r.PathValue("id"), number)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	mediaType := blob.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(content)), 10))
	if _, err := w.Write(content); err != nil {
		a.logger.Warn("writing content response", "error", err)
	}
}

// queryInt parses an optional non-negative integer query parameter.
// Empty means zero (the engine applies its own default).
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, strconv.ErrRange
	}
	return value, nil
}
