// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cask-engine/cask/lib/engine"
)

func createTestArtifact(t *testing.T, eng *engine.Engine, content string) *engine.Artifact {
	t.Helper()
	artifact, _, err := eng.CreateArtifact(context.Background(), engine.CreateArtifactParams{
		Tenant:    "acme",
		Kind:      "report",
		Title:     "test artifact",
		Content:   []byte(content),
		MediaType: "text/plain",
	})
	if err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}
	return artifact
}

func TestCreateArtifactFirstVersion(t *testing.T) {
	eng, _ := newTestEngine(t)

	artifact, version, err := eng.CreateArtifact(context.Background(), engine.CreateArtifactParams{
		Tenant:    "acme",
		Kind:      "report",
		Title:     "quarterly numbers",
		Content:   []byte("the numbers"),
		MediaType: "text/plain",
		Provenance: engine.Provenance{
			ProducerID: "agent-7",
			SessionID:  "session-1",
		},
		Tags: []string{"finance", "q3"},
	})
	if err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	if artifact.CurrentVersion != 1 || artifact.VersionCount != 1 {
		t.Errorf("pointer/count = %d/%d, want 1/1",
			artifact.CurrentVersion, artifact.VersionCount)
	}
	if artifact.Status != engine.StatusDraft {
		t.Errorf("Status = %s, want draft", artifact.Status)
	}
	if version.Number != 1 {
		t.Errorf("version Number = %d, want 1", version.Number)
	}
	if version.ArtifactID != artifact.ID {
		t.Error("version does not belong to the created artifact")
	}

	loaded, err := eng.GetArtifact(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if loaded.Provenance.ProducerID != "agent-7" {
		t.Errorf("ProducerID = %q, want agent-7", loaded.Provenance.ProducerID)
	}
	if len(loaded.Tags) != 2 {
		t.Errorf("Tags = %v, want two tags", loaded.Tags)
	}
}

func TestCreateArtifactValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params engine.CreateArtifactParams
	}{
		{"missing tenant", engine.CreateArtifactParams{Kind: "report", Title: "t", Content: []byte("x")}},
		{"missing kind", engine.CreateArtifactParams{Tenant: "acme", Title: "t", Content: []byte("x")}},
		{"missing title", engine.CreateArtifactParams{Tenant: "acme", Kind: "report", Content: []byte("x")}},
		{"empty content", engine.CreateArtifactParams{Tenant: "acme", Kind: "report", Title: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := eng.CreateArtifact(ctx, tc.params)
			if engine.KindOf(err) != engine.KindValidation {
				t.Errorf("KindOf(err) = %v, want validation", engine.KindOf(err))
			}
		})
	}
}

func TestCreateArtifactDuplicateExternalID(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	params := engine.CreateArtifactParams{
		Tenant:     "acme",
		ExternalID: "report-2026-08",
		Kind:       "report",
		Title:      "first",
		Content:    []byte("one"),
	}
	if _, _, err := eng.CreateArtifact(ctx, params); err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	params.Title = "second"
	params.Content = []byte("two")
	_, _, err := eng.CreateArtifact(ctx, params)
	if engine.KindOf(err) != engine.KindConflict {
		t.Errorf("KindOf(err) = %v, want conflict", engine.KindOf(err))
	}

	// The same external id under another tenant is fine.
	params.Tenant = "globex"
	if _, _, err := eng.CreateArtifact(ctx, params); err != nil {
		t.Errorf("CreateArtifact for other tenant: %v", err)
	}
}

func TestAppendVersionAdvancesPointer(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	artifact := createTestArtifact(t, eng, "v1 content")

	version, err := eng.AppendVersion(ctx, artifact.ID, engine.AppendVersionParams{
		Content:       []byte("v2 content"),
		MediaType:     "text/plain",
		ChangeSummary: "second draft",
	})
	if err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}
	if version.Number != 2 {
		t.Errorf("Number = %d, want 2", version.Number)
	}

	loaded, err := eng.GetArtifact(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if loaded.CurrentVersion != 2 || loaded.VersionCount != 2 {
		t.Errorf("pointer/count = %d/%d, want 2/2",
			loaded.CurrentVersion, loaded.VersionCount)
	}

	current, err := eng.GetCurrent(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.ID != version.ID {
		t.Error("GetCurrent did not resolve to the appended version")
	}
}

func TestAppendVersionUnknownArtifact(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.AppendVersion(context.Background(), "no-such-artifact",
		engine.AppendVersionParams{Content: []byte("x")})
	if engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("KindOf(err) = %v, want not-found", engine.KindOf(err))
	}
}

// TestAppendVersionConcurrent runs competing appends against one
// artifact. The version sequence must come out as 1..n with no gaps
// and no duplicates, and the pointer must land on the maximum.
func TestAppendVersionConcurrent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	artifact := createTestArtifact(t, eng, "base")

	const appenders = 8
	var wg sync.WaitGroup
	errs := make([]error, appenders)
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.AppendVersion(ctx, artifact.ID, engine.AppendVersionParams{
				Content: []byte{byte('a' + i)},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("appender %d: %v", i, err)
		}
	}

	versions, err := eng.ListVersions(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != appenders+1 {
		t.Fatalf("got %d versions, want %d", len(versions), appenders+1)
	}
	for i, version := range versions {
		if version.Number != int64(i+1) {
			t.Errorf("versions[%d].Number = %d, want %d", i, version.Number, i+1)
		}
	}

	loaded, err := eng.GetArtifact(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if loaded.CurrentVersion != int64(appenders+1) {
		t.Errorf("CurrentVersion = %d, want %d", loaded.CurrentVersion, appenders+1)
	}
}

func TestContentRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	artifact := createTestArtifact(t, eng, "original payload")

	if _, err := eng.AppendVersion(ctx, artifact.ID, engine.AppendVersionParams{
		Content:   []byte("updated payload"),
		MediaType: "text/plain",
	}); err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}

	current, blob, err := eng.Content(ctx, artifact.ID, 0)
	if err != nil {
		t.Fatalf("Content(current): %v", err)
	}
	if !bytes.Equal(current, []byte("updated payload")) {
		t.Errorf("current content = %q", current)
	}
	if blob.MediaType != "text/plain" {
		t.Errorf("MediaType = %q, want text/plain", blob.MediaType)
	}

	first, _, err := eng.Content(ctx, artifact.ID, 1)
	if err != nil {
		t.Fatalf("Content(1): %v", err)
	}
	if !bytes.Equal(first, []byte("original payload")) {
		t.Errorf("version 1 content = %q", first)
	}
}

func TestPatchArtifactMetadataOnly(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	artifact := createTestArtifact(t, eng, "content")

	title := "renamed"
	status := engine.StatusApproved
	tags := []string{"kept"}
	patched, err := eng.PatchArtifact(ctx, artifact.ID, engine.PatchParams{
		Title:  &title,
		Status: &status,
		Tags:   &tags,
	})
	if err != nil {
		t.Fatalf("PatchArtifact: %v", err)
	}

	if patched.Title != "renamed" {
		t.Errorf("Title = %q, want renamed", patched.Title)
	}
	if patched.Status != engine.StatusApproved {
		t.Errorf("Status = %s, want approved", patched.Status)
	}
	if len(patched.Tags) != 1 || patched.Tags[0] != "kept" {
		t.Errorf("Tags = %v, want [kept]", patched.Tags)
	}
	if patched.VersionCount != 1 {
		t.Errorf("VersionCount = %d, patch must not create versions", patched.VersionCount)
	}
}

func TestPatchArtifactRejectsUnknownStatus(t *testing.T) {
	eng, _ := newTestEngine(t)
	artifact := createTestArtifact(t, eng, "content")

	bogus := engine.ArtifactStatus("frozen")
	_, err := eng.PatchArtifact(context.Background(), artifact.ID, engine.PatchParams{
		Status: &bogus,
	})
	if engine.KindOf(err) != engine.KindValidation {
		t.Errorf("KindOf(err) = %v, want validation", engine.KindOf(err))
	}
}

// TestDeleteArtifactReleasesSharedBlob walks the shared-blob
// scenario: X holds "hello" and "world", Y holds "hello" again.
// Deleting X must leave the "hello" blob at refcount 1 (still held by
// Y) and the "world" blob at zero, collectible.
func TestDeleteArtifactReleasesSharedBlob(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	x, versionX1, err := eng.CreateArtifact(ctx, engine.CreateArtifactParams{
		Tenant: "acme", Kind: "note", Title: "x",
		Content: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("create X: %v", err)
	}
	versionX2, err := eng.AppendVersion(ctx, x.ID, engine.AppendVersionParams{
		Content: []byte("world"),
	})
	if err != nil {
		t.Fatalf("append to X: %v", err)
	}

	_, versionY1, err := eng.CreateArtifact(ctx, engine.CreateArtifactParams{
		Tenant: "acme", Kind: "note", Title: "y",
		Content: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("create Y: %v", err)
	}

	if versionY1.BlobID != versionX1.BlobID {
		t.Fatal("identical content did not share a blob")
	}

	helloBlob, err := eng.GetBlob(ctx, versionX1.BlobID)
	if err != nil {
		t.Fatalf("GetBlob(hello): %v", err)
	}
	if helloBlob.RefCount != 2 {
		t.Fatalf("hello refcount = %d, want 2", helloBlob.RefCount)
	}

	if err := eng.DeleteArtifact(ctx, x.ID); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}

	helloBlob, err = eng.GetBlob(ctx, versionX1.BlobID)
	if err != nil {
		t.Fatalf("GetBlob(hello) after delete: %v", err)
	}
	if helloBlob.RefCount != 1 {
		t.Errorf("hello refcount = %d, want 1 (still held by Y)", helloBlob.RefCount)
	}

	worldBlob, err := eng.GetBlob(ctx, versionX2.BlobID)
	if err != nil {
		t.Fatalf("GetBlob(world) after delete: %v", err)
	}
	if worldBlob.RefCount != 0 {
		t.Errorf("world refcount = %d, want 0 (collectible)", worldBlob.RefCount)
	}

	if _, err := eng.GetArtifact(ctx, x.ID); engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("X still readable after delete: %v", err)
	}
}

func TestDeleteArtifactCascades(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	parent := createTestArtifact(t, eng, "parent content")
	child := createTestArtifact(t, eng, "child content")

	if _, err := eng.Link(ctx, engine.LinkParams{
		ParentID: parent.ID, ChildID: child.ID, Kind: engine.KindDerivedFrom,
	}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	handoff, err := eng.CreateHandoff(ctx, engine.CreateHandoffParams{
		ArtifactID: child.ID, Target: "reviewer",
	})
	if err != nil {
		t.Fatalf("CreateHandoff: %v", err)
	}

	if err := eng.DeleteArtifact(ctx, child.ID); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}

	if _, err := eng.GetHandoff(ctx, handoff.ID); engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("handoff survived artifact deletion: %v", err)
	}
	descendants, err := eng.Descendants(ctx, parent.ID, 5)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(descendants) != 0 {
		t.Errorf("relationship survived artifact deletion: %v", descendants)
	}
}

func TestDeleteArtifactNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	err := eng.DeleteArtifact(context.Background(), "no-such-artifact")
	if engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("KindOf(err) = %v, want not-found", engine.KindOf(err))
	}
}

func TestListArtifactsFilters(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	for _, spec := range []struct {
		tenant, kind, session string
	}{
		{"acme", "report", "s1"},
		{"acme", "note", "s1"},
		{"acme", "report", "s2"},
		{"globex", "report", "s3"},
	} {
		if _, _, err := eng.CreateArtifact(ctx, engine.CreateArtifactParams{
			Tenant:     spec.tenant,
			Kind:       spec.kind,
			Title:      "t",
			Content:    []byte(spec.tenant + spec.kind + spec.session),
			Provenance: engine.Provenance{SessionID: spec.session},
		}); err != nil {
			t.Fatalf("CreateArtifact: %v", err)
		}
	}

	byTenant, err := eng.ListArtifacts(ctx, engine.ArtifactFilter{Tenant: "acme"})
	if err != nil {
		t.Fatalf("ListArtifacts(tenant): %v", err)
	}
	if len(byTenant) != 3 {
		t.Errorf("tenant filter returned %d, want 3", len(byTenant))
	}

	byKind, err := eng.ListArtifacts(ctx, engine.ArtifactFilter{Tenant: "acme", Kind: "report"})
	if err != nil {
		t.Fatalf("ListArtifacts(kind): %v", err)
	}
	if len(byKind) != 2 {
		t.Errorf("kind filter returned %d, want 2", len(byKind))
	}

	bySession, err := eng.ListArtifacts(ctx, engine.ArtifactFilter{SessionID: "s3"})
	if err != nil {
		t.Fatalf("ListArtifacts(session): %v", err)
	}
	if len(bySession) != 1 || bySession[0].Tenant != "globex" {
		t.Errorf("session filter returned %v", bySession)
	}
}

func TestArtifactExpiryIsStored(t *testing.T) {
	eng, fakeClock := newTestEngine(t)
	ctx := context.Background()

	expiry := fakeClock.Now().Add(24 * time.Hour).UTC()
	artifact, _, err := eng.CreateArtifact(ctx, engine.CreateArtifactParams{
		Tenant:    "acme",
		Kind:      "scratch",
		Title:     "ephemeral",
		Content:   []byte("gone tomorrow"),
		ExpiresAt: expiry,
	})
	if err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	loaded, err := eng.GetArtifact(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if !loaded.ExpiresAt.Equal(expiry) {
		t.Errorf("ExpiresAt = %v, want %v", loaded.ExpiresAt, expiry)
	}
}
