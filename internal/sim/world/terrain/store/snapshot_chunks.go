package store

import (
	"fmt"

	snapv1 "voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/encoding"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// ExportLoadedChunks converts loaded chunk blocks into snapshot chunks. Light
// is attached by the caller.
func (s *ChunkStore) ExportLoadedChunks(keys []ChunkKey) []snapv1.ChunkV1 {
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.Peek(k.CX, k.CZ)
		if ch == nil {
			continue
		}
		c := snapv1.ChunkV1{CX: k.CX, CZ: k.CZ}
		for _, y := range ch.NonEmptySections() {
			c.Sections = append(c.Sections, snapv1.SectionV1{
				Y:      y,
				Blocks: encoding.EncodeRLE(ch.section(y).Blocks[:]),
			})
		}
		out = append(out, c)
	}
	return out
}

// ImportChunks rebuilds a chunk store from snapshot chunks. Imported chunks
// are ready but unlit.
func ImportChunks(gen WorldGen, props voxel.Properties, chunks []snapv1.ChunkV1) (*ChunkStore, error) {
	store := NewChunkStore(gen, props)
	for _, sc := range chunks {
		k := ChunkKey{CX: sc.CX, CZ: sc.CZ}
		if _, dup := store.Chunks[k]; dup {
			return nil, fmt.Errorf("snapshot chunk %d,%d duplicated", sc.CX, sc.CZ)
		}
		c := newChunk(sc.CX, sc.CZ, gen.MinSection, gen.MaxSection)
		for _, ss := range sc.Sections {
			i := ss.Y - gen.MinSection
			if i < 0 || i >= len(c.sections) {
				return nil, fmt.Errorf("snapshot chunk %d,%d section %d outside %d..%d", sc.CX, sc.CZ, ss.Y, gen.MinSection, gen.MaxSection)
			}
			blocks, err := encoding.DecodeRLE[uint16](ss.Blocks, voxel.SectionVolume)
			if err != nil {
				return nil, fmt.Errorf("snapshot chunk %d,%d section %d: %w", sc.CX, sc.CZ, ss.Y, err)
			}
			sec := &Section{}
			copy(sec.Blocks[:], blocks)
			sec.recount()
			c.sections[i] = sec
		}
		c.dirty = true
		_ = c.Digest()
		c.ready.Store(true)
		store.Chunks[k] = c
	}
	return store, nil
}
