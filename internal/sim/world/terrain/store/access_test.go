package store

import (
	"testing"

	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	"voxelcraft.ai/lumen/internal/sim/tuning"
)

// testGen generates nothing: every block id is air.
func testGen() WorldGen {
	return WorldGen{Seed: 7, MinSection: -1, MaxSection: 4}
}

type recordingObserver struct {
	voxels    []voxel.Pos
	emptiness map[voxel.SectionPos]bool
}

func (o *recordingObserver) NotifyVoxelChanged(p voxel.Pos) { o.voxels = append(o.voxels, p) }
func (o *recordingObserver) NotifySectionEmptinessChanged(s voxel.SectionPos, empty bool) {
	if o.emptiness == nil {
		o.emptiness = map[voxel.SectionPos]bool{}
	}
	o.emptiness[s] = empty
}

func TestSetBlock_ReportsChangesAndEmptiness(t *testing.T) {
	cats := catalogs.Default()
	s := NewChunkStore(testGen(), &cats.Blocks)
	o := &recordingObserver{}
	s.SetObserver(o)

	stone := uint16(cats.Blocks.MustID("STONE"))
	if !s.SetBlock(-1, 20, 5, stone) {
		t.Fatalf("first write should change the world")
	}
	if s.SetBlock(-1, 20, 5, stone) {
		t.Fatalf("rewriting the same block is not a change")
	}
	sec := voxel.SectionPos{X: -1, Y: 1, Z: 0}
	if empty, ok := o.emptiness[sec]; !ok || empty {
		t.Fatalf("expected section %s to become non-empty, got %v", sec, o.emptiness)
	}
	if len(o.voxels) != 1 || o.voxels[0] != (voxel.Pos{X: -1, Y: 20, Z: 5}) {
		t.Fatalf("unexpected voxel notifications %v", o.voxels)
	}

	ch := s.Peek(-1, 0)
	if got := ch.Section(1).Transparency().Get(voxel.Pos{X: -1, Y: 20, Z: 5}.Index()); got != voxel.FullOpaque {
		t.Fatalf("transparency cache = %s, want full_opaque", got)
	}

	s.SetBlock(-1, 20, 5, 0)
	if empty := o.emptiness[sec]; !empty {
		t.Fatalf("expected section %s to become empty", sec)
	}
	if ch.Section(1) != nil {
		t.Fatalf("an all-air section must read as absent")
	}
}

func TestChunk_ImplementsWorldLookup(t *testing.T) {
	s := NewChunkStore(testGen(), nil)
	if s.Chunk(3, 3) != nil {
		t.Fatalf("unloaded chunk must be a nil interface")
	}
	s.GetOrGenChunk(3, 3)
	c := s.Chunk(3, 3)
	if c == nil || !c.Ready() {
		t.Fatalf("generated chunk should be loaded and ready")
	}
	if c.Light().MinLightSection() != -2 || c.Light().MaxLightSection() != 5 {
		t.Fatalf("light range %d..%d", c.Light().MinLightSection(), c.Light().MaxLightSection())
	}
	if !s.Unload(3, 3) || s.Chunk(3, 3) != nil {
		t.Fatalf("unload failed")
	}
}

func TestInBounds(t *testing.T) {
	gen := testGen()
	gen.BoundaryR = 100
	s := NewChunkStore(gen, nil)
	if !s.InBounds(0, -16, 0) || s.InBounds(0, -17, 0) || s.InBounds(0, 80, 0) || s.InBounds(101, 0, 0) {
		t.Fatalf("bounds wrong")
	}
	if s.SetBlock(0, 80, 0, 1) {
		t.Fatalf("out of bounds write must be ignored")
	}
}

func TestGenerateChunk_Deterministic(t *testing.T) {
	cats := catalogs.Default()
	tune := tuning.Defaults()
	gen := NewWorldGen(tune, &cats.Blocks)

	a := NewChunkStore(gen, &cats.Blocks)
	b := NewChunkStore(gen, &cats.Blocks)
	for _, pos := range a.LoadArea(voxel.ChunkPos{}, 1) {
		if a.Peek(pos.X, pos.Z).Digest() != b.GetOrGenChunk(pos.X, pos.Z).Digest() {
			t.Fatalf("chunk %s generated differently", pos)
		}
	}

	ch := a.Peek(0, 0)
	if len(ch.NonEmptySections()) == 0 {
		t.Fatalf("generated chunk is empty")
	}
	bottom := tune.MinSection * 16
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			if ch.Get(x, bottom, z) == gen.Air {
				t.Fatalf("column %d,%d has no floor", x, z)
			}
			for y := tune.Gen.SeaLevel + 1; y < (tune.MaxSection+1)*16; y++ {
				if ch.Get(x, y, z) == gen.Water {
					t.Fatalf("water above sea level at %d,%d,%d", x, y, z)
				}
			}
		}
	}
}
