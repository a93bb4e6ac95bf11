// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cask-engine/cask/lib/clock"
	"github.com/cask-engine/cask/lib/engine"
)

// maxBodyBytes caps JSON request bodies. Content travels base64 inside
// JSON, so the effective payload ceiling is about three quarters of
// this.
const maxBodyBytes = 64 << 20

// API routes HTTP requests to the engine.
type API struct {
	engine *engine.Engine
	clock  clock.Clock
	logger *slog.Logger

	startedAt int64 // Unix seconds, for the status endpoint
}

// APIConfig configures an API.
type APIConfig struct {
	// Engine is the artifact engine. Required.
	Engine *engine.Engine

	// Clock drives the status endpoint's uptime. Required.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewAPI creates the API handler set.
func NewAPI(config APIConfig) *API {
	if config.Engine == nil {
		panic("httpapi.API: Engine is required")
	}
	if config.Clock == nil {
		panic("httpapi.API: Clock is required")
	}
	if config.Logger == nil {
		panic("httpapi.API: Logger is required")
	}
	return &API{
		engine:    config.Engine,
		clock:     config.Clock,
		logger:    config.Logger,
		startedAt: config.Clock.Now().Unix(),
	}
}

// Routes returns the API's request mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /artifacts", a.handleCreateArtifact)
	mux.HandleFunc("GET /artifacts", a.handleListArtifacts)
	mux.HandleFunc("GET /artifacts/{id}", a.handleGetArtifact)
	mux.HandleFunc("PATCH /artifacts/{id}", a.handlePatchArtifact)
	mux.HandleFunc("DELETE /artifacts/{id}", a.handleDeleteArtifact)
	mux.HandleFunc("POST /artifacts/{id}/versions", a.handleAppendVersion)
	mux.HandleFunc("GET /artifacts/{id}/versions", a.handleListVersions)
	mux.HandleFunc("GET /artifacts/{id}/versions/{number}", a.handleGetVersion)
	mux.HandleFunc("GET /artifacts/{id}/content", a.handleContent)
	mux.HandleFunc("GET /artifacts/{id}/lineage", a.handleLineage)

	mux.HandleFunc("POST /relationships", a.handleLink)

	mux.HandleFunc("POST /handoffs", a.handleCreateHandoff)
	mux.HandleFunc("GET /handoffs", a.handleListHandoffs)
	mux.HandleFunc("GET /handoffs/{id}", a.handleGetHandoff)
	mux.HandleFunc("POST /handoffs/{id}/accept", a.handleAcceptHandoff)
	mux.HandleFunc("POST /handoffs/{id}/complete", a.handleCompleteHandoff)
	mux.HandleFunc("POST /handoffs/{id}/cancel", a.handleCancelHandoff)

	mux.HandleFunc("GET /status", a.handleStatus)

	return mux
}

// decodeJSON reads a JSON request body into dst, applying the body
// size cap.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// writeJSON encodes value as JSON into w with the given status. If
// encoding fails (typically because the client disconnected), the
// error is logged; the caller cannot send a corrective response to a
// dead client.
func (a *API) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		a.logger.Warn("writing JSON response", "error", err)
	}
}

// sendError writes a plain error body with an explicit status. Used
// for request-shape failures that never reach the engine.
func (a *API) sendError(w http.ResponseWriter, status int, format string, args ...any) {
	a.writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// writeEngineError maps an engine error kind to a status code and
// writes the error body. Storage failures are logged; the other kinds
// are the caller's fault and stay quiet.
func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindConflict:
		status = http.StatusConflict
	case engine.KindStorage:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type errorResponse struct {
	Error string `json:"error"`
}
