package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxelcraft.ai/lumen/internal/persistence/snapshot"
)

func TestArchiveSnapshot_NothingToArchive(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := ArchiveSnapshot(filepath.Join(dir, "archives"), filepath.Join(dir, "light.snap.zst"), 3)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestArchiveSnapshot_CopiesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "light.snap.zst")
	archives := filepath.Join(dir, "archives")

	for i := 1; i <= 4; i++ {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{WorldID: "w1", Tick: uint64(i * 10), LightVersion: 1}}
		if err := snapshot.WriteSnapshot(src, snap); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
		meta, ok, err := ArchiveSnapshot(archives, src, 2)
		if err != nil || !ok {
			t.Fatalf("archive %d: ok=%v err=%v", i, ok, err)
		}
		if meta.Generation != i || meta.Tick != uint64(i*10) || meta.WorldID != "w1" {
			t.Fatalf("unexpected meta %+v", meta)
		}
	}

	gens, err := generations(archives)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(gens) != 2 || gens[0] != 3 || gens[1] != 4 {
		t.Fatalf("kept generations %v, want [3 4]", gens)
	}

	b, err := os.ReadFile(filepath.Join(archives, "gen_000004", "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta Meta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	h, err := snapshot.ReadHeader(filepath.Join(archives, "gen_000004", meta.Snapshot))
	if err != nil {
		t.Fatalf("read archived header: %v", err)
	}
	if h.Tick != 40 {
		t.Fatalf("archived tick %d, want 40", h.Tick)
	}
}
