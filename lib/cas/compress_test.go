// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package cas_test

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/cask-engine/cask/lib/cas"
)

func TestCompressRoundTrip(t *testing.T) {
	// Repetitive text compresses under every algorithm.
	content := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))

	for _, tag := range []cas.Compression{cas.CompressionLZ4, cas.CompressionZstd} {
		stored, applied, err := cas.Compress(content, tag)
		if err != nil {
			t.Fatalf("Compress(%s): %v", tag, err)
		}
		if applied != tag {
			t.Errorf("Compress(%s) applied %s", tag, applied)
		}
		if len(stored) >= len(content) {
			t.Errorf("Compress(%s): stored %d bytes, input %d", tag, len(stored), len(content))
		}

		restored, err := cas.Decompress(stored, applied, len(content))
		if err != nil {
			t.Fatalf("Decompress(%s): %v", tag, err)
		}
		if !bytes.Equal(restored, content) {
			t.Errorf("Decompress(%s): content mismatch", tag)
		}
	}
}

func TestCompressIncompressibleFallsBackToNone(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	stored, applied, err := cas.Compress(random, cas.CompressionZstd)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if applied != cas.CompressionNone {
		t.Errorf("applied = %s, want none for random data", applied)
	}
	if !bytes.Equal(stored, random) {
		t.Error("fallback did not return input unchanged")
	}
}

func TestDecompressRejectsSizeMismatch(t *testing.T) {
	content := []byte(strings.Repeat("abcdef", 100))
	stored, applied, err := cas.Compress(content, cas.CompressionZstd)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := cas.Decompress(stored, applied, len(content)-1); err == nil {
		t.Error("Decompress accepted a wrong uncompressed size")
	}
}

func TestSelectCompression(t *testing.T) {
	cases := []struct {
		name      string
		probe     []byte
		mediaType string
		want      cas.Compression
	}{
		{"json media type", []byte("{}"), "application/json", cas.CompressionZstd},
		{"markdown", []byte("# title"), "text/markdown", cas.CompressionZstd},
		{"json with charset", []byte("{}"), "application/json; charset=utf-8", cas.CompressionZstd},
		{"png", []byte{0x89, 'P', 'N', 'G'}, "image/png", cas.CompressionNone},
		{"zip", []byte{'P', 'K'}, "application/zip", cas.CompressionNone},
		{"unknown type, text probe", []byte("plain words"), "", cas.CompressionZstd},
		{"unknown type, binary probe", []byte{0x00, 0x01, 0x02}, "", cas.CompressionLZ4},
		{"octet-stream, binary probe", []byte{0xff, 0x00}, "application/octet-stream", cas.CompressionLZ4},
	}
	for _, tc := range cases {
		if got := cas.SelectCompression(tc.probe, tc.mediaType); got != tc.want {
			t.Errorf("%s: SelectCompression = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestParseCompressionRoundTrip(t *testing.T) {
	for _, tag := range []cas.Compression{cas.CompressionNone, cas.CompressionLZ4, cas.CompressionZstd} {
		parsed, err := cas.ParseCompression(tag.String())
		if err != nil {
			t.Fatalf("ParseCompression(%s): %v", tag, err)
		}
		if parsed != tag {
			t.Errorf("round trip: got %s, want %s", parsed, tag)
		}
	}
	if _, err := cas.ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression accepted an unknown tag")
	}
}
