// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"time"

	"github.com/cask-engine/cask/lib/codec"
	"github.com/cask-engine/cask/lib/engine"
)

// provenanceBody is the producer-supplied origin block, identical on
// requests and responses.
type provenanceBody struct {
	ProducerID   string `json:"producer_id,omitempty"`
	ProducerRole string `json:"producer_role,omitempty"`
	Framework    string `json:"framework,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Model        string `json:"model,omitempty"`
}

// createArtifactRequest is the body of POST /artifacts. Content is
// base64 in JSON.
type createArtifactRequest struct {
	Tenant     string `json:"tenant"`
	ExternalID string `json:"external_id,omitempty"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`

	Content    []byte `json:"content"`
	MediaType  string `json:"media_type,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	TokenCount int64  `json:"token_count,omitempty"`

	CreatedBy  string         `json:"created_by,omitempty"`
	Provenance provenanceBody `json:"provenance,omitzero"`

	RetentionClass string    `json:"retention_class,omitempty"`
	Visibility     string    `json:"visibility,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
}

// appendVersionRequest is the body of POST /artifacts/{id}/versions.
type appendVersionRequest struct {
	Content       []byte `json:"content"`
	MediaType     string `json:"media_type,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
	TokenCount    int64  `json:"token_count,omitempty"`
	ChangeSummary string `json:"change_summary,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
}

// patchArtifactRequest is the body of PATCH /artifacts/{id}. Absent
// fields are left unchanged; present fields overwrite, including
// empty values.
type patchArtifactRequest struct {
	Title   *string   `json:"title"`
	Summary *string   `json:"summary"`
	Status  *string   `json:"status"`
	Tags    *[]string `json:"tags"`
}

// linkRequest is the body of POST /relationships.
type linkRequest struct {
	ParentID      string `json:"parent_id"`
	ChildID       string `json:"child_id"`
	Kind          string `json:"kind"`
	ParentVersion int64  `json:"parent_version,omitempty"`
	ChildVersion  int64  `json:"child_version,omitempty"`
	Context       any    `json:"context,omitempty"`
}

// createHandoffRequest is the body of POST /handoffs.
type createHandoffRequest struct {
	ArtifactID      string    `json:"artifact_id"`
	VersionNumber   int64     `json:"version_number,omitempty"`
	Target          string    `json:"target"`
	ExpectsResponse bool      `json:"expects_response,omitempty"`
	Deadline        time.Time `json:"deadline,omitzero"`
	Priority        string    `json:"priority,omitempty"`
	Context         any       `json:"context,omitempty"`
}

// completeHandoffRequest is the body of POST /handoffs/{id}/complete.
type completeHandoffRequest struct {
	ResponseArtifactID string `json:"response_artifact_id,omitempty"`
}

// artifactBody is the wire form of an artifact.
type artifactBody struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Tenant         string         `json:"tenant"`
	ExternalID     string         `json:"external_id,omitempty"`
	Kind           string         `json:"kind"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	CurrentVersion int64          `json:"current_version"`
	VersionCount   int64          `json:"version_count"`
	Provenance     provenanceBody `json:"provenance,omitzero"`
	RetentionClass string         `json:"retention_class"`
	Visibility     string         `json:"visibility"`
	Status         string         `json:"status"`
	Tags           []string       `json:"tags,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at,omitzero"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func artifactToBody(artifact *engine.Artifact) artifactBody {
	return artifactBody{
		ID:             artifact.ID,
		URL:            "/artifacts/" + artifact.ID,
		Tenant:         artifact.Tenant,
		ExternalID:     artifact.ExternalID,
		Kind:           artifact.Kind,
		Title:          artifact.Title,
		Summary:        artifact.Summary,
		CurrentVersion: artifact.CurrentVersion,
		VersionCount:   artifact.VersionCount,
		Provenance: provenanceBody{
			ProducerID:   artifact.Provenance.ProducerID,
			ProducerRole: artifact.Provenance.ProducerRole,
			Framework:    artifact.Provenance.Framework,
			SessionID:    artifact.Provenance.SessionID,
			TaskID:       artifact.Provenance.TaskID,
			Model:        artifact.Provenance.Model,
		},
		RetentionClass: artifact.RetentionClass,
		Visibility:     artifact.Visibility,
		Status:         string(artifact.Status),
		Tags:           artifact.Tags,
		ExpiresAt:      artifact.ExpiresAt,
		CreatedAt:      artifact.CreatedAt,
		UpdatedAt:      artifact.UpdatedAt,
	}
}

// versionBody is the wire form of a version.
type versionBody struct {
	ID            string    `json:"id"`
	ArtifactID    string    `json:"artifact_id"`
	Number        int64     `json:"number"`
	BlobID        string    `json:"blob_id"`
	MediaType     string    `json:"media_type,omitempty"`
	Encoding      string    `json:"encoding,omitempty"`
	Size          int64     `json:"size"`
	TokenCount    int64     `json:"token_count,omitempty"`
	ChangeSummary string    `json:"change_summary,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func versionToBody(version *engine.Version) versionBody {
	return versionBody{
		ID:            version.ID,
		ArtifactID:    version.ArtifactID,
		Number:        version.Number,
		BlobID:        version.BlobID,
		MediaType:     version.MediaType,
		Encoding:      version.Encoding,
		Size:          version.Size,
		TokenCount:    version.TokenCount,
		ChangeSummary: version.ChangeSummary,
		CreatedBy:     version.CreatedBy,
		CreatedAt:     version.CreatedAt,
	}
}

// relationshipBody is the wire form of a lineage edge. Context is the
// stored canonical payload decoded back to JSON-friendly values.
type relationshipBody struct {
	ID            string    `json:"id"`
	ParentID      string    `json:"parent_id"`
	ChildID       string    `json:"child_id"`
	Kind          string    `json:"kind"`
	ParentVersion int64     `json:"parent_version,omitempty"`
	ChildVersion  int64     `json:"child_version,omitempty"`
	Context       any       `json:"context,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func relationshipToBody(rel *engine.Relationship) (relationshipBody, error) {
	body := relationshipBody{
		ID:            rel.ID,
		ParentID:      rel.ParentID,
		ChildID:       rel.ChildID,
		Kind:          string(rel.Kind),
		ParentVersion: rel.ParentVersion,
		ChildVersion:  rel.ChildVersion,
		CreatedAt:     rel.CreatedAt,
	}
	if len(rel.Context) > 0 {
		var decoded any
		if err := codec.Unmarshal(rel.Context, &decoded); err != nil {
			return relationshipBody{}, err
		}
		body.Context = decoded
	}
	return body, nil
}

// handoffBody is the wire form of a handoff.
type handoffBody struct {
	ID                 string    `json:"id"`
	ArtifactID         string    `json:"artifact_id"`
	VersionNumber      int64     `json:"version_number,omitempty"`
	Target             string    `json:"target"`
	ExpectsResponse    bool      `json:"expects_response"`
	Deadline           time.Time `json:"deadline,omitzero"`
	Priority           string    `json:"priority"`
	Context            any       `json:"context,omitempty"`
	Status             string    `json:"status"`
	ResponseArtifactID string    `json:"response_artifact_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func handoffToBody(handoff *engine.Handoff) (handoffBody, error) {
	body := handoffBody{
		ID:                 handoff.ID,
		ArtifactID:         handoff.ArtifactID,
		VersionNumber:      handoff.VersionNumber,
		Target:             handoff.Target,
		ExpectsResponse:    handoff.ExpectsResponse,
		Deadline:           handoff.Deadline,
		Priority:           handoff.Priority,
		Status:             string(handoff.Status),
		ResponseArtifactID: handoff.ResponseArtifactID,
		CreatedAt:          handoff.CreatedAt,
		UpdatedAt:          handoff.UpdatedAt,
	}
	if len(handoff.Context) > 0 {
		var decoded any
		if err := codec.Unmarshal(handoff.Context, &decoded); err != nil {
			return handoffBody{}, err
		}
		body.Context = decoded
	}
	return body, nil
}

// lineageBody is the response of GET /artifacts/{id}/lineage.
type lineageBody struct {
	ArtifactID string         `json:"artifact_id"`
	Direction  string         `json:"direction"`
	Entries    []lineageEntry `json:"entries"`
}

type lineageEntry struct {
	ArtifactID   string           `json:"artifact_id"`
	Depth        int              `json:"depth"`
	Relationship relationshipBody `json:"relationship"`
}

// createArtifactResponse pairs the new artifact with its first
// version.
type createArtifactResponse struct {
	Artifact artifactBody `json:"artifact"`
	Version  versionBody  `json:"version"`
}

// getArtifactResponse is artifact metadata plus the resolved current
// version and its blob location.
type getArtifactResponse struct {
	Artifact artifactBody `json:"artifact"`
	Current  *versionBody `json:"current,omitempty"`
	Blob     *blobBody    `json:"blob,omitempty"`
}

// blobBody is the wire form of a blob reference.
type blobBody struct {
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	StoredSize  int64  `json:"stored_size"`
	MediaType   string `json:"media_type,omitempty"`
	Compression string `json:"compression"`
	RefCount    int64  `json:"ref_count"`
}

func blobToBody(blob engine.BlobRef) blobBody {
	return blobBody{
		ID:          blob.ID,
		Hash:        blob.Hash.String(),
		Size:        blob.Size,
		StoredSize:  blob.StoredSize,
		MediaType:   blob.MediaType,
		Compression: blob.Compression.String(),
		RefCount:    blob.RefCount,
	}
}
