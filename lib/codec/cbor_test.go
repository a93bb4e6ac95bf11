// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"testing"

	"github.com/cask-engine/cask/lib/codec"
)

func TestCanonicalIsKeyOrderIndependent(t *testing.T) {
	// Two maps with the same entries inserted in different orders must
	// produce identical canonical bytes.
	first, err := codec.Canonical(map[string]any{
		"reason": "refinement",
		"step":   int64(3),
		"source": "planner",
	})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}

	second, err := codec.Canonical(map[string]any{
		"source": "planner",
		"step":   int64(3),
		"reason": "refinement",
	})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}

	if !codec.Equal(first, second) {
		t.Errorf("canonical encodings differ:\n%x\n%x", first, second)
	}
}

func TestCanonicalDistinguishesPayloads(t *testing.T) {
	first, err := codec.Canonical(map[string]any{"reason": "refinement"})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	second, err := codec.Canonical(map[string]any{"reason": "review"})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if codec.Equal(first, second) {
		t.Error("different payloads produced equal canonical bytes")
	}
}

func TestRoundTripDecodesToStringKeyedMap(t *testing.T) {
	encoded, err := codec.Marshal(map[string]any{
		"nested": map[string]any{"depth": int64(2)},
		"list":   []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	nested, ok := top["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested type = %T, want map[string]any", top["nested"])
	}
	if nested["depth"] != uint64(2) && nested["depth"] != int64(2) {
		t.Errorf("nested depth = %v (%T)", nested["depth"], nested["depth"])
	}
}
