// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/cask-engine/cask/lib/cas"
)

// ArtifactStatus is the lifecycle status of an artifact. Statuses
// describe the artifact's standing in its producer's workflow; the
// engine interprets only Archived (exempt from retention sweeps).
type ArtifactStatus string

const (
	StatusDraft      ArtifactStatus = "draft"
	StatusReview     ArtifactStatus = "review"
	StatusApproved   ArtifactStatus = "approved"
	StatusSuperseded ArtifactStatus = "superseded"
	StatusArchived   ArtifactStatus = "archived"
)

// ParseArtifactStatus validates a status string.
func ParseArtifactStatus(s string) (ArtifactStatus, error) {
	switch ArtifactStatus(s) {
	case StatusDraft, StatusReview, StatusApproved, StatusSuperseded, StatusArchived:
		return ArtifactStatus(s), nil
	default:
		return "", validationError("unknown artifact status: %q", s)
	}
}

// RelationshipKind is the type of a directed lineage edge.
type RelationshipKind string

const (
	KindDerivedFrom RelationshipKind = "derived-from"
	KindSupersedes  RelationshipKind = "supersedes"
	KindReferences  RelationshipKind = "references"
	KindRespondsTo  RelationshipKind = "responds-to"
)

// ParseRelationshipKind validates a relationship kind string.
func ParseRelationshipKind(s string) (RelationshipKind, error) {
	switch RelationshipKind(s) {
	case KindDerivedFrom, KindSupersedes, KindReferences, KindRespondsTo:
		return RelationshipKind(s), nil
	default:
		return "", validationError("unknown relationship kind: %q", s)
	}
}

// HandoffStatus is the state of a handoff request.
type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffAccepted  HandoffStatus = "accepted"
	HandoffCompleted HandoffStatus = "completed"
	HandoffExpired   HandoffStatus = "expired"
	HandoffCancelled HandoffStatus = "cancelled"
)

// ParseHandoffStatus validates a handoff status string.
func ParseHandoffStatus(s string) (HandoffStatus, error) {
	switch HandoffStatus(s) {
	case HandoffPending, HandoffAccepted, HandoffCompleted, HandoffExpired, HandoffCancelled:
		return HandoffStatus(s), nil
	default:
		return "", validationError("unknown handoff status: %q", s)
	}
}

// BlobRef describes a stored blob: the content identity plus the
// metadata row's current state.
type BlobRef struct {
	ID          string
	Hash        cas.Hash
	Size        int64
	StoredSize  int64
	MediaType   string
	Compression cas.Compression
	RefCount    int64
}

// Provenance carries the producer-supplied origin fields. Opaque to
// the engine: stored, filtered on, never interpreted.
type Provenance struct {
	ProducerID   string
	ProducerRole string
	Framework    string
	SessionID    string
	TaskID       string
	Model        string
}

// Artifact is a logical, versioned output unit. The engine mutates
// only CurrentVersion, VersionCount, and UpdatedAt automatically;
// everything else changes through explicit calls.
type Artifact struct {
	ID             string
	Tenant         string
	ExternalID     string
	Kind           string
	Title          string
	Summary        string
	CurrentVersion int64
	VersionCount   int64
	Provenance     Provenance
	RetentionClass string
	Visibility     string
	Status         ArtifactStatus
	Tags           []string
	ExpiresAt      time.Time // zero when no expiry is set
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Version is one immutable snapshot within an artifact's history.
type Version struct {
	ID            string
	ArtifactID    string
	Number        int64
	BlobID        string
	MediaType     string
	Encoding      string
	Size          int64
	TokenCount    int64 // zero when the producer supplied none
	ChangeSummary string
	CreatedBy     string
	CreatedAt     time.Time
}

// Relationship is a directed, typed lineage edge between two
// artifacts, optionally pinned to specific version numbers.
type Relationship struct {
	ID            string
	ParentID      string
	ChildID       string
	Kind          RelationshipKind
	ParentVersion int64  // zero when unpinned
	ChildVersion  int64  // zero when unpinned
	Context       []byte // canonical CBOR, nil when absent
	CreatedAt     time.Time
}

// Handoff is a time-bounded request directing an artifact at a target
// producer or role.
type Handoff struct {
	ID                 string
	ArtifactID         string
	VersionNumber      int64 // zero when the handoff tracks the current version
	Target             string
	ExpectsResponse    bool
	Deadline           time.Time // zero when no deadline is set
	Priority           string
	Context            []byte // canonical CBOR, nil when absent
	Status             HandoffStatus
	ResponseArtifactID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
