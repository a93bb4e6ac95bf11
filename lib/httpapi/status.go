// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/cask-engine/cask/lib/engine"
)

// statusResponse is the liveness and usage overview returned by
// GET /status.
type statusResponse struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Stats         statsBody     `json:"stats"`
	Tenants       []tenantUsage `json:"tenants"`
}

type statsBody struct {
	ArtifactCount     int64 `json:"artifact_count"`
	VersionCount      int64 `json:"version_count"`
	BlobCount         int64 `json:"blob_count"`
	StoredBytes       int64 `json:"stored_bytes"`
	CollectibleBlobs  int64 `json:"collectible_blobs"`
	PendingHandoffs   int64 `json:"pending_handoffs"`
	DatabaseSizeBytes int64 `json:"database_size_bytes"`
}

type tenantUsage struct {
	Tenant        string `json:"tenant"`
	ArtifactCount int64  `json:"artifact_count"`
	VersionCount  int64  `json:"version_count"`
	ContentBytes  int64  `json:"content_bytes"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.GetStats(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	usage, err := a.engine.Usage(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	tenants := make([]tenantUsage, len(usage))
	for i, entry := range usage {
		tenants[i] = tenantUsage{
			Tenant:        entry.Tenant,
			ArtifactCount: entry.ArtifactCount,
			VersionCount:  entry.VersionCount,
			ContentBytes:  entry.ContentBytes,
		}
	}

	a.writeJSON(w, http.StatusOK, statusResponse{
		UptimeSeconds: a.clock.Now().Unix() - a.startedAt,
		Stats:         toStatsBody(stats),
		Tenants:       tenants,
	})
}

func toStatsBody(stats engine.Stats) statsBody {
	return statsBody{
		ArtifactCount:     stats.ArtifactCount,
		VersionCount:      stats.VersionCount,
		BlobCount:         stats.BlobCount,
		StoredBytes:       stats.StoredBytes,
		CollectibleBlobs:  stats.CollectibleBlobs,
		PendingHandoffs:   stats.PendingHandoffs,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
	}
}
