package world

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/tuning"
	"voxelcraft.ai/lumen/internal/sim/world/terrain/store"
)

type snapshotReq struct {
	resp chan snapshot.SnapshotV1
}

// Snapshot asks the running loop for a snapshot.
func (w *World) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	resp := make(chan snapshot.SnapshotV1, 1)
	select {
	case w.snapReq <- snapshotReq{resp: resp}:
	case <-w.done:
		return snapshot.SnapshotV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-w.done:
		return snapshot.SnapshotV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// ExportSnapshot captures every loaded chunk and the light of the lit ones.
// Outside the loop it must not run concurrently with Run.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	keys := w.chunks.LoadedChunkKeys()
	chunks := w.chunks.ExportLoadedChunks(keys)
	for i := range chunks {
		pos := store.ChunkKey{CX: chunks[i].CX, CZ: chunks[i].CZ}.Pos()
		p, err := w.light.ChunkLightPayload(pos)
		if err != nil {
			continue
		}
		chunks[i].Light = lightToSnapshot(p)
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			WorldID:      w.cfg.WorldID,
			LightVersion: light.FormatVersion,
			Tick:         w.tick.Load(),
		},
		Seed:          w.cfg.Seed,
		MinSection:    w.cfg.MinSection,
		MaxSection:    w.cfg.MaxSection,
		BoundaryR:     w.cfg.BoundaryR,
		PaletteDigest: w.catalogs.Blocks.PaletteDigest,
		Chunks:        chunks,
	}
}

// NewFromSnapshot rebuilds a world from a snapshot. The snapshot's seed and
// vertical range replace those in cfg. Saved light that cannot be installed
// is dropped and the chunk is lit again on demand.
func NewFromSnapshot(cfg tuning.Tuning, cats *catalogs.Catalogs, snap snapshot.SnapshotV1, opts ...Option) (*World, error) {
	if snap.PaletteDigest != cats.Blocks.PaletteDigest {
		return nil, fmt.Errorf("snapshot palette %s does not match catalog %s", snap.PaletteDigest, cats.Blocks.PaletteDigest)
	}
	if snap.Header.WorldID != "" {
		cfg.WorldID = snap.Header.WorldID
	}
	cfg.Seed = snap.Seed
	cfg.MinSection, cfg.MaxSection = snap.MinSection, snap.MaxSection
	cfg.BoundaryR = snap.BoundaryR

	cs, err := store.ImportChunks(store.NewWorldGen(cfg, &cats.Blocks), &cats.Blocks, snap.Chunks)
	if err != nil {
		return nil, err
	}
	w, err := New(cfg, cats, append(opts, withChunks(cs))...)
	if err != nil {
		return nil, err
	}

	installed, dropped := 0, 0
	for _, sc := range snap.Chunks {
		if sc.Light == nil {
			continue
		}
		pos := store.ChunkKey{CX: sc.CX, CZ: sc.CZ}.Pos()
		log := w.log.With(zap.Stringer("chunk", pos))
		p, err := lightFromSnapshot(sc.Light)
		if err != nil {
			log.Warn("snapshot light unreadable", zap.Error(err))
			dropped++
			continue
		}
		ok, err := w.light.InstallChunkLight(pos, p)
		if err != nil {
			log.Warn("snapshot light is corrupt", zap.Error(err))
		}
		if !ok {
			dropped++
			continue
		}
		installed++
	}
	w.log.Info("world restored from snapshot",
		zap.Int("chunks", len(snap.Chunks)),
		zap.Int("light_installed", installed),
		zap.Int("light_dropped", dropped))
	// Installing is not a change; observers get it when they subscribe.
	w.dirtyMu.Lock()
	clear(w.dirty)
	w.dirtyMu.Unlock()
	return w, nil
}

// FlushUpdates publishes pending section updates outside the loop, for
// callers that drive the world without Run.
func (w *World) FlushUpdates() int {
	return len(w.flushUpdates(w.tick.Load()))
}

func lightToSnapshot(p light.ChunkPayload) *snapshot.LightV1 {
	conv := func(in []light.SectionPayload) []snapshot.SectionLightV1 {
		if len(in) == 0 {
			return nil
		}
		out := make([]snapshot.SectionLightV1, len(in))
		for i, sp := range in {
			out[i] = snapshot.SectionLightV1{Y: sp.Y, State: uint8(sp.Light.State), Data: sp.Light.EncodeText()}
		}
		return out
	}
	return &snapshot.LightV1{Version: p.Version, Block: conv(p.Block), Sky: conv(p.Sky)}
}

func lightFromSnapshot(l *snapshot.LightV1) (light.ChunkPayload, error) {
	conv := func(in []snapshot.SectionLightV1) ([]light.SectionPayload, error) {
		if len(in) == 0 {
			return nil, nil
		}
		out := make([]light.SectionPayload, len(in))
		for i, sl := range in {
			p, err := nibble.DecodeText(nibble.State(sl.State), sl.Data)
			if err != nil {
				return nil, fmt.Errorf("section %d: %w", sl.Y, err)
			}
			out[i] = light.SectionPayload{Y: sl.Y, Light: p}
		}
		return out, nil
	}
	block, err := conv(l.Block)
	if err != nil {
		return light.ChunkPayload{}, fmt.Errorf("block light: %w", err)
	}
	sky, err := conv(l.Sky)
	if err != nil {
		return light.ChunkPayload{}, fmt.Errorf("sky light: %w", err)
	}
	return light.ChunkPayload{Version: l.Version, Block: block, Sky: sky}, nil
}
