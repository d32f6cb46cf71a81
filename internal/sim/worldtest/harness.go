// Package worldtest drives a running world through its exported API so light
// behaviour can be tested from outside the world package.
package worldtest

import (
	"context"
	"testing"
	"time"

	"voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	"voxelcraft.ai/lumen/internal/sim/tuning"
	"voxelcraft.ai/lumen/internal/sim/world"
)

// SmallTuning is a four section world whose terrain stays below y=38, so
// everything from y=48 up is open sky with no block light.
func SmallTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.WorldID = "TEST"
	t.Seed = 42
	t.MinSection, t.MaxSection = 0, 3
	t.BoundaryR = 0
	t.PreloadRadius = 1
	t.Light.Workers = 2
	t.Light.PropagateEveryMs = 5
	t.Gen.BaseHeight = 20
	t.Gen.HeightVariation = 12
	t.Gen.SeaLevel = 24
	t.Observer.MaxRadius = 2
	return t
}

// Harness owns a preloaded world whose loop runs until the test ends.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World
}

func NewHarness(t *testing.T, cfg tuning.Tuning, cats *catalogs.Catalogs, opts ...world.Option) *Harness {
	t.Helper()
	w, err := world.New(cfg, cats, opts...)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, cats)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed
// world, e.g. one restored from a snapshot.
func NewHarnessWithWorld(t *testing.T, w *world.World, cats *catalogs.Catalogs) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	if err := w.Preload(context.Background()); err != nil {
		t.Fatalf("preload: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-w.Done()
		w.Close()
	})
	return &Harness{T: t, Cats: cats, W: w}
}

func (h *Harness) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Set places a block by name and waits until its light is published.
func (h *Harness) Set(x, y, z int, block string) world.EditResult {
	h.T.Helper()
	id, ok := h.Cats.Blocks.Index[block]
	if !ok {
		h.T.Fatalf("unknown block %q", block)
	}
	return h.SetID(voxel.Pos{X: x, Y: y, Z: z}, id)
}

func (h *Harness) SetID(p voxel.Pos, id uint16) world.EditResult {
	h.T.Helper()
	ctx, cancel := h.ctx()
	defer cancel()
	resp := make(chan world.EditResult, 1)
	select {
	case h.W.Edits() <- world.EditRequest{Pos: p, Block: id, Resp: resp}:
	case <-ctx.Done():
		h.T.Fatalf("edit %s not accepted: %v", p, ctx.Err())
	}
	select {
	case res := <-resp:
		return res
	case <-ctx.Done():
		h.T.Fatalf("edit %s not applied: %v", p, ctx.Err())
	}
	return world.EditResult{}
}

// MustSet is Set that fails the test on a rejected edit.
func (h *Harness) MustSet(x, y, z int, block string) {
	h.T.Helper()
	if res := h.Set(x, y, z, block); res.Err != nil {
		h.T.Fatalf("set %s at (%d,%d,%d): %v", block, x, y, z, res.Err)
	}
}

func (h *Harness) Light(x, y, z int) world.LightSample {
	h.T.Helper()
	ctx, cancel := h.ctx()
	defer cancel()
	s, err := h.W.LightAt(ctx, voxel.Pos{X: x, Y: y, Z: z})
	if err != nil {
		h.T.Fatalf("light at (%d,%d,%d): %v", x, y, z, err)
	}
	return s
}

// Observe joins an observer and returns its message channel. The world
// closes it when the observer leaves or the loop stops.
func (h *Harness) Observe(id string, center voxel.ChunkPos, radius int) <-chan []byte {
	h.T.Helper()
	out := make(chan []byte, 4096)
	ctx, cancel := h.ctx()
	defer cancel()
	select {
	case h.W.ObserverJoin() <- world.ObserverJoinRequest{SessionID: id, Out: out, Center: center, Radius: radius}:
	case <-ctx.Done():
		h.T.Fatalf("observer join: %v", ctx.Err())
	}
	return out
}

func (h *Harness) Snapshot() snapshot.SnapshotV1 {
	h.T.Helper()
	ctx, cancel := h.ctx()
	defer cancel()
	s, err := h.W.Snapshot(ctx)
	if err != nil {
		h.T.Fatalf("snapshot: %v", err)
	}
	return s
}
