package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "light.snap.zst")
	in := SnapshotV1{
		Header:        Header{WorldID: "OVERWORLD", LightVersion: 3},
		Seed:          42,
		MinSection:    -1,
		MaxSection:    4,
		PaletteDigest: "abc",
		Chunks: []ChunkV1{{
			CX:       1,
			CZ:       -2,
			Sections: []SectionV1{{Y: 0, Blocks: "AQE="}},
			Light: &LightV1{
				Version: 3,
				Block:   []SectionLightV1{{Y: -2, State: 0}, {Y: 0, State: 2, Data: "AA=="}},
			},
		}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.Version != Version || h.WorldID != "OVERWORLD" || h.LightVersion != 3 || h.Chunks != 1 {
		t.Fatalf("unexpected header: %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Seed != 42 || out.MinSection != -1 || len(out.Chunks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
	ch := out.Chunks[0]
	if ch.CX != 1 || ch.CZ != -2 || ch.Light == nil || len(ch.Light.Block) != 2 {
		t.Fatalf("unexpected chunk: %+v", ch)
	}
	if ch.Light.Block[1].Data != "AA==" || ch.Light.Block[1].State != 2 {
		t.Fatalf("light section lost: %+v", ch.Light.Block[1])
	}
}

func TestReadSnapshot_MissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
