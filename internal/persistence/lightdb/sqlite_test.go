package lightdb

import (
	"context"
	"path/filepath"
	"testing"

	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "index", "light.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func fullPayload(level byte) []byte {
	b := make([]byte, nibble.ArraySize)
	for i := range b {
		b[i] = level | level<<4
	}
	return b
}

func TestDB_ChunkRoundTrip(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	pos := voxel.ChunkPos{X: -3, Z: 7}
	in := light.ChunkPayload{
		Version: light.FormatVersion,
		Block: []light.SectionPayload{
			{Y: -1, Light: nibble.Persisted{State: nibble.Null}},
			{Y: 0, Light: nibble.Persisted{State: nibble.Initialized, Data: fullPayload(9)}},
		},
		Sky: []light.SectionPayload{
			{Y: -1, Light: nibble.Persisted{State: nibble.Uninitialized}},
			{Y: 0, Light: nibble.Persisted{State: nibble.Initialized, Data: fullPayload(15)}},
		},
	}
	if err := d.WriteChunk(pos, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	out, ok, err := d.LoadChunk(ctx, pos)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out.Version != light.FormatVersion || len(out.Block) != 2 || len(out.Sky) != 2 {
		t.Fatalf("unexpected payload: version=%d block=%d sky=%d", out.Version, len(out.Block), len(out.Sky))
	}
	if out.Block[1].Light.Level(0) != 9 || out.Sky[1].Light.Level(4095) != 15 {
		t.Fatalf("levels lost")
	}
	if out.Sky[0].Light.State != nibble.Uninitialized || len(out.Sky[0].Light.Data) != 0 {
		t.Fatalf("uninitialized section came back as %+v", out.Sky[0].Light.State)
	}
	if st := d.Stats(); st.Written != 4 || st.Commits == 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	if _, ok, err := d.LoadChunk(ctx, voxel.ChunkPos{X: 100}); ok || err != nil {
		t.Fatalf("empty chunk: ok=%v err=%v", ok, err)
	}
}

func TestDB_MixedVersionsAreRejected(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	sec := voxel.SectionPos{X: 1, Y: 2, Z: 3}
	if err := d.WriteSection(sec, engine.BlockLight, 1, nibble.Persisted{State: nibble.Uninitialized}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.WriteSection(voxel.SectionPos{X: 1, Y: 3, Z: 3}, engine.SkyLight, 2, nibble.Persisted{State: nibble.Null}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	p, ok, err := d.LoadChunk(ctx, sec.Chunk())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if p.Version != 0 {
		t.Fatalf("version = %d, want 0 for mixed rows", p.Version)
	}
}

func TestDB_LaterWriteWins(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	sec := voxel.SectionPos{Y: 1}
	_ = d.WriteSection(sec, engine.BlockLight, 1, nibble.Persisted{State: nibble.Initialized, Data: fullPayload(3)})
	_ = d.WriteSection(sec, engine.BlockLight, 1, nibble.Persisted{State: nibble.Initialized, Data: fullPayload(4)})
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	p, _, err := d.LoadChunk(ctx, sec.Chunk())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Block) != 1 || p.Block[0].Light.Level(17) != 4 {
		t.Fatalf("expected the second write to replace the first")
	}
}

func TestDB_MetaAndClose(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	if err := d.SetMeta(ctx, "palette_digest", "abc"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	v, ok, err := d.Meta(ctx, "palette_digest")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("meta = %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := d.Meta(ctx, "missing"); ok {
		t.Fatalf("missing key reported present")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.WriteSection(voxel.SectionPos{}, engine.BlockLight, 1, nibble.Persisted{}); err != ErrClosed {
		t.Fatalf("write after close = %v", err)
	}
}
