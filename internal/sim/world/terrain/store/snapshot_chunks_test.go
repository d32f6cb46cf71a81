package store

import (
	"testing"

	snapv1 "voxelcraft.ai/lumen/internal/persistence/snapshot"
)

func TestExportAndImportChunksRoundTrip(t *testing.T) {
	gen := testGen()
	s := NewChunkStore(gen, nil)
	s.SetBlock(16, 3, -32, 3)
	s.SetBlock(17, 40, -31, 9)

	exported := s.ExportLoadedChunks([]ChunkKey{{CX: 1, CZ: -2}})
	if len(exported) != 1 {
		t.Fatalf("expected 1 exported chunk, got %d", len(exported))
	}
	if len(exported[0].Sections) != 2 {
		t.Fatalf("expected 2 non-empty sections, got %d", len(exported[0].Sections))
	}

	imported, err := ImportChunks(gen, nil, exported)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if got := imported.GetBlock(16, 3, -32); got != 3 {
		t.Fatalf("unexpected imported block: got %d", got)
	}
	if got := imported.GetBlock(17, 40, -31); got != 9 {
		t.Fatalf("unexpected imported block: got %d", got)
	}
	got := imported.Peek(1, -2)
	if got == nil || !got.Ready() || got.Light().Lit() {
		t.Fatalf("imported chunk should be ready and unlit")
	}
	if got.Digest() != s.Peek(1, -2).Digest() {
		t.Fatalf("digest changed across round trip")
	}
}

func TestImportChunksRejectsInvalidShape(t *testing.T) {
	gen := testGen()
	_, err := ImportChunks(gen, nil, []snapv1.ChunkV1{{
		CX:       0,
		CZ:       0,
		Sections: []snapv1.SectionV1{{Y: gen.MaxSection + 1, Blocks: ""}},
	}})
	if err == nil {
		t.Fatalf("expected error for section out of range")
	}
	_, err = ImportChunks(gen, nil, []snapv1.ChunkV1{{
		Sections: []snapv1.SectionV1{{Y: 0, Blocks: "AQE="}},
	}})
	if err == nil {
		t.Fatalf("expected error for short section payload")
	}
}
