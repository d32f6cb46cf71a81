package catalogs

import (
	"testing"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

func TestLoad_BlocksJSON(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load blocks.json: %v", err)
	}
	b := &cats.Blocks
	if b.Palette[0] != "AIR" || b.Index["AIR"] != 0 {
		t.Fatalf("AIR must be palette id 0, got %v", b.Palette[:1])
	}
	if b.PaletteDigest == "" || b.DefsDigest == "" {
		t.Fatalf("missing digests")
	}
	if got := b.Emission(b.MustID("GLOWSTONE")); got != 15 {
		t.Fatalf("glowstone emission = %d, want 15", got)
	}
	if got := b.Opacity(b.MustID("WATER")); got != 2 {
		t.Fatalf("water opacity = %d, want 2", got)
	}
	if got := voxel.Classify(b, b.MustID("STONE")); got != voxel.FullOpaque {
		t.Fatalf("stone class = %s", got)
	}
	if got := voxel.Classify(b, voxel.Air); got != voxel.Transparent {
		t.Fatalf("air class = %s", got)
	}
}

func TestDefault_MatchesConfigDir(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load blocks.json: %v", err)
	}
	if Default().Blocks.PaletteDigest != cats.Blocks.PaletteDigest {
		t.Fatalf("embedded catalog differs from configs/blocks.json")
	}
}

func TestSlabShapes(t *testing.T) {
	b := &Default().Blocks
	bottom, top := b.MustID("STONE_SLAB"), b.MustID("STONE_SLAB_TOP")
	if !b.Directional(bottom) || !b.Directional(top) {
		t.Fatalf("slabs must be directional")
	}
	if voxel.Classify(b, bottom) != voxel.Special {
		t.Fatalf("slab should classify as special")
	}
	if b.FaceOcclusion(bottom, voxel.Pos{}, voxel.Down) != voxel.FullFace || b.FaceOcclusion(bottom, voxel.Pos{}, voxel.Up) != voxel.EmptyFace {
		t.Fatalf("bottom slab faces wrong")
	}
	if !voxel.Occludes(b.FaceOcclusion(bottom, voxel.Pos{}, voxel.North), b.FaceOcclusion(top, voxel.Pos{}, voxel.South)) {
		t.Fatalf("a bottom and a top slab side by side should close the gap")
	}
	if b.Directional(b.MustID("STONE")) {
		t.Fatalf("stone is not directional")
	}
}

func TestLoadBlocks_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing air":  `[{"id":"STONE","opacity":15}]`,
		"bad opacity":  `[{"id":"AIR","opacity":0},{"id":"X","opacity":16}]`,
		"bad shape":    `[{"id":"AIR","opacity":0},{"id":"X","opacity":3,"shape":"cone"}]`,
		"glowing air":  `[{"id":"AIR","opacity":0,"emission":3}]`,
		"duplicate id": `[{"id":"AIR","opacity":0},{"id":"X","opacity":1},{"id":"X","opacity":2}]`,
	}
	for name, raw := range cases {
		if _, err := parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
