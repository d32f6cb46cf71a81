package world

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// Preload generates and lights the configured area around the origin. It
// must not run concurrently with Run.
func (w *World) Preload(ctx context.Context) error {
	return w.ensureLit(ctx, voxel.ChunkPos{}, w.cfg.PreloadRadius)
}

// ensureLit loads every chunk within radius of center and lights those that
// are not lit yet, restoring saved light where the LightSource has some.
func (w *World) ensureLit(ctx context.Context, center voxel.ChunkPos, radius int) error {
	loadRadius := radius
	if !w.cfg.Light.EdgeCheck {
		// Strict lighting needs every neighbour present.
		loadRadius++
	}
	w.chunks.LoadArea(center, loadRadius)

	var unlit []voxel.ChunkPos
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			pos := voxel.ChunkPos{X: center.X + dx, Z: center.Z + dz}
			c := w.chunks.Peek(pos.X, pos.Z)
			if c == nil || c.Light().Lit() {
				continue
			}
			if w.restore(ctx, pos) {
				continue
			}
			unlit = append(unlit, pos)
		}
	}
	if len(unlit) == 0 {
		return nil
	}
	w.log.Info("lighting chunks",
		zap.Stringer("center", center),
		zap.Int("radius", radius),
		zap.Int("chunks", len(unlit)))

	if w.cfg.Light.EdgeCheck {
		return w.light.LightChunks(ctx, unlit)
	}
	slices.SortFunc(unlit, func(a, b voxel.ChunkPos) int {
		return cmp.Or(cmp.Compare(a.Z, b.Z), cmp.Compare(a.X, b.X))
	})
	var errs []error
	for _, pos := range unlit {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := w.light.ComputeInitialLight(pos, false); err != nil {
			errs = append(errs, fmt.Errorf("chunk %s: %w", pos, err))
		}
	}
	return errors.Join(errs...)
}

// restore installs saved light for one chunk. Light that cannot be used is
// logged and the chunk is lit from scratch instead.
func (w *World) restore(ctx context.Context, pos voxel.ChunkPos) bool {
	if w.source == nil {
		return false
	}
	log := w.log.With(zap.Stringer("chunk", pos))
	p, found, err := w.source.LoadChunk(ctx, pos)
	if err != nil {
		log.Warn("loading saved light failed", zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	ok, err := w.light.InstallChunkLight(pos, p)
	if err != nil {
		log.Warn("saved light is corrupt", zap.Error(err))
		return false
	}
	if ok {
		// Neighbours may have changed since the light was saved.
		if err := w.light.CheckEdges(pos); err != nil {
			log.Warn("edge check after restore failed", zap.Error(err))
		}
	}
	return ok
}

// EditRequest replaces one voxel. Resp, when set, receives the result after
// the edit's light has been propagated.
type EditRequest struct {
	Pos   voxel.Pos
	Block uint16
	Resp  chan EditResult
}

type EditResult struct {
	Changed bool
	Tick    uint64
	Err     error
}

func (w *World) applyEdit(req EditRequest, tick uint64) EditResult {
	p := req.Pos
	if !w.chunks.InBounds(p.X, p.Y, p.Z) {
		return EditResult{Tick: tick, Err: fmt.Errorf("%w: %s", ErrOutOfBounds, p)}
	}
	if int(req.Block) >= len(w.catalogs.Blocks.Palette) {
		return EditResult{Tick: tick, Err: fmt.Errorf("unknown block id %d", req.Block)}
	}
	cp := p.Chunk()
	c := w.chunks.Peek(cp.X, cp.Z)
	if c == nil || !c.Light().Lit() {
		// Changes to unlit chunks would be dropped by the light system.
		return EditResult{Tick: tick, Err: fmt.Errorf("%w: %s", light.ErrNotLit, cp)}
	}
	return EditResult{Changed: w.chunks.SetBlock(p.X, p.Y, p.Z, req.Block), Tick: tick}
}

// LightSample is what one voxel looks like to a reader.
type LightSample struct {
	Lit   bool
	Block int
	Sky   int
	Voxel string
}

type blockReq struct {
	pos  voxel.Pos
	resp chan string
}

func (w *World) blockName(p voxel.Pos) string {
	return w.catalogs.Blocks.Name(voxel.State(w.chunks.GetBlock(p.X, p.Y, p.Z)))
}

// LightAt samples one voxel. Light is read directly from published stores;
// the block name is read on the loop.
func (w *World) LightAt(ctx context.Context, p voxel.Pos) (LightSample, error) {
	s := LightSample{
		Block: w.light.LightLevel(p, engine.BlockLight),
		Sky:   w.light.LightLevel(p, engine.SkyLight),
	}
	cp := p.Chunk()
	if c := w.chunks.Peek(cp.X, cp.Z); c != nil {
		s.Lit = c.Light().Lit()
	}
	resp := make(chan string, 1)
	select {
	case w.blockReq <- blockReq{pos: p, resp: resp}:
	case <-w.done:
		return s, ErrStopped
	case <-ctx.Done():
		return s, ctx.Err()
	}
	select {
	case s.Voxel = <-resp:
		return s, nil
	case <-w.done:
		return s, ErrStopped
	case <-ctx.Done():
		return s, ctx.Err()
	}
}

// SectionLight returns the published light of one section.
func (w *World) SectionLight(sec voxel.SectionPos, ch engine.Channel) (nibble.Persisted, bool) {
	return w.view(ch).SectionPayload(sec)
}

func (w *World) view(ch engine.Channel) light.View {
	if ch == engine.SkyLight {
		return w.light.SkyView()
	}
	return w.light.BlockView()
}

type Status struct {
	Tick         uint64
	LoadedChunks int
	LitChunks    int
	Observers    int
	Light        light.Stats
}

func (w *World) Status() Status {
	keys := w.chunks.LoadedChunkKeys()
	st := Status{
		Tick:         w.tick.Load(),
		LoadedChunks: len(keys),
		Observers:    int(w.nObs.Load()),
		Light:        w.light.Stats(),
	}
	for _, k := range keys {
		if c := w.chunks.Peek(k.CX, k.CZ); c != nil && c.Light().Lit() {
			st.LitChunks++
		}
	}
	return st
}

func sortUpdates(u []SectionUpdate) {
	slices.SortFunc(u, func(a, b SectionUpdate) int {
		return cmp.Or(
			cmp.Compare(a.Pos.X, b.Pos.X),
			cmp.Compare(a.Pos.Z, b.Pos.Z),
			cmp.Compare(a.Pos.Y, b.Pos.Y),
			cmp.Compare(a.Channel, b.Channel),
		)
	})
}
