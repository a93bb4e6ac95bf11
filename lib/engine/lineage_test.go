// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"testing"

	"github.com/cask-engine/cask/lib/engine"
)

func TestLinkCreatesEdge(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	parent := createTestArtifact(t, eng, "parent")
	child := createTestArtifact(t, eng, "child")

	relationship, err := eng.Link(ctx, engine.LinkParams{
		ParentID: parent.ID,
		ChildID:  child.ID,
		Kind:     engine.KindDerivedFrom,
		Context:  map[string]any{"reason": "summarized"},
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if relationship.ID == "" {
		t.Error("relationship id is empty")
	}

	ancestors, err := eng.Ancestors(ctx, child.ID, 5)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(ancestors) != 1 || ancestors[0].ArtifactID != parent.ID {
		t.Errorf("Ancestors = %v, want the parent", ancestors)
	}
	if ancestors[0].Depth != 1 {
		t.Errorf("Depth = %d, want 1", ancestors[0].Depth)
	}
}

func TestLinkValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	artifact := createTestArtifact(t, eng, "solo")

	_, err := eng.Link(ctx, engine.LinkParams{
		ParentID: artifact.ID, ChildID: artifact.ID, Kind: engine.KindReferences,
	})
	if engine.KindOf(err) != engine.KindValidation {
		t.Errorf("self-link: KindOf(err) = %v, want validation", engine.KindOf(err))
	}

	_, err = eng.Link(ctx, engine.LinkParams{
		ParentID: artifact.ID, ChildID: "missing", Kind: engine.KindReferences,
	})
	if engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("missing endpoint: KindOf(err) = %v, want not-found", engine.KindOf(err))
	}

	_, err = eng.Link(ctx, engine.LinkParams{
		ParentID: artifact.ID, ChildID: artifact.ID, Kind: "causes",
	})
	if engine.KindOf(err) != engine.KindValidation {
		t.Errorf("unknown kind: KindOf(err) = %v, want validation", engine.KindOf(err))
	}
}

// TestLinkIdempotent re-links with identical semantics, which must
// return the existing edge, then with a different context, which is a
// conflict.
func TestLinkIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	parent := createTestArtifact(t, eng, "parent")
	child := createTestArtifact(t, eng, "child")

	params := engine.LinkParams{
		ParentID: parent.ID,
		ChildID:  child.ID,
		Kind:     engine.KindSupersedes,
		Context:  map[string]any{"note": "same", "pass": 1},
	}
	first, err := eng.Link(ctx, params)
	if err != nil {
		t.Fatalf("first Link: %v", err)
	}

	// Identical semantics: canonical encoding makes key order
	// irrelevant.
	params.Context = map[string]any{"pass": 1, "note": "same"}
	second, err := eng.Link(ctx, params)
	if err != nil {
		t.Fatalf("re-link: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-link created a new edge: %s vs %s", second.ID, first.ID)
	}

	params.Context = map[string]any{"note": "different"}
	_, err = eng.Link(ctx, params)
	if engine.KindOf(err) != engine.KindConflict {
		t.Errorf("conflicting context: KindOf(err) = %v, want conflict", engine.KindOf(err))
	}

	// A different kind between the same pair is a separate edge.
	if _, err := eng.Link(ctx, engine.LinkParams{
		ParentID: parent.ID, ChildID: child.ID, Kind: engine.KindReferences,
	}); err != nil {
		t.Errorf("different kind: %v", err)
	}
}

// TestTraversalTerminatesOnCycle builds A derived-from B and
// B derived-from A. Traversal must terminate, visit each node at most
// once, and not report the origin.
func TestTraversalTerminatesOnCycle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := createTestArtifact(t, eng, "artifact a")
	b := createTestArtifact(t, eng, "artifact b")

	if _, err := eng.Link(ctx, engine.LinkParams{
		ParentID: b.ID, ChildID: a.ID, Kind: engine.KindDerivedFrom,
	}); err != nil {
		t.Fatalf("Link b→a: %v", err)
	}
	if _, err := eng.Link(ctx, engine.LinkParams{
		ParentID: a.ID, ChildID: b.ID, Kind: engine.KindDerivedFrom,
	}); err != nil {
		t.Fatalf("Link a→b: %v", err)
	}

	ancestors, err := eng.Ancestors(ctx, a.ID, 100)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(ancestors) != 1 || ancestors[0].ArtifactID != b.ID {
		t.Errorf("Ancestors = %v, want exactly b", ancestors)
	}

	descendants, err := eng.Descendants(ctx, a.ID, 100)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(descendants) != 1 || descendants[0].ArtifactID != b.ID {
		t.Errorf("Descendants = %v, want exactly b", descendants)
	}
}

// TestTraversalDepthCutoff builds a chain c1 ← c2 ← c3 ← c4 and
// checks that maxDepth bounds the walk independently of cycle
// detection.
func TestTraversalDepthCutoff(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	chain := make([]*engine.Artifact, 4)
	for i := range chain {
		chain[i] = createTestArtifact(t, eng, string(rune('a'+i)))
	}
	for i := 1; i < len(chain); i++ {
		if _, err := eng.Link(ctx, engine.LinkParams{
			ParentID: chain[i-1].ID,
			ChildID:  chain[i].ID,
			Kind:     engine.KindDerivedFrom,
		}); err != nil {
			t.Fatalf("Link %d: %v", i, err)
		}
	}

	ancestors, err := eng.Ancestors(ctx, chain[3].ID, 2)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(ancestors) != 2 {
		t.Fatalf("got %d ancestors at depth 2, want 2", len(ancestors))
	}
	for _, entry := range ancestors {
		if entry.Depth > 2 {
			t.Errorf("entry %s at depth %d exceeds cutoff", entry.ArtifactID, entry.Depth)
		}
	}

	all, err := eng.Descendants(ctx, chain[0].ID, 10)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d descendants, want 3", len(all))
	}
}
