package store

import (
	"sort"

	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	genpkg "voxelcraft.ai/lumen/internal/sim/world/terrain/gen"
)

func (s *ChunkStore) InBounds(x, y, z int) bool {
	if y < s.Gen.MinSection*16 || y >= (s.Gen.MaxSection+1)*16 {
		return false
	}
	if s.Gen.BoundaryR > 0 {
		if x < -s.Gen.BoundaryR || x > s.Gen.BoundaryR || z < -s.Gen.BoundaryR || z > s.Gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) MinSection() int { return s.Gen.MinSection }
func (s *ChunkStore) MaxSection() int { return s.Gen.MaxSection }

// Chunk implements engine.World; it never generates.
func (s *ChunkStore) Chunk(x, z int) engine.Chunk {
	if ch := s.Peek(x, z); ch != nil {
		return ch
	}
	return nil
}

// Peek returns a loaded chunk or nil.
func (s *ChunkStore) Peek(cx, cz int) *Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Chunks[ChunkKey{CX: cx, CZ: cz}]
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock reads a loaded voxel; unloaded chunks read as air.
func (s *ChunkStore) GetBlock(x, y, z int) uint16 {
	if !s.InBounds(x, y, z) {
		return s.Gen.Air
	}
	ch := s.Peek(genpkg.FloorDiv(x, 16), genpkg.FloorDiv(z, 16))
	if ch == nil {
		return s.Gen.Air
	}
	return ch.Get(genpkg.Mod(x, 16), y, genpkg.Mod(z, 16))
}

// SetBlock writes a voxel, generating its chunk if needed, and reports the
// change to the observer. It returns whether anything changed.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) bool {
	if !s.InBounds(x, y, z) {
		return false
	}

	cx := genpkg.FloorDiv(x, 16)
	cz := genpkg.FloorDiv(z, 16)
	lx := genpkg.Mod(x, 16)
	lz := genpkg.Mod(z, 16)
	ch := s.GetOrGenChunk(cx, cz)
	changed, emptiness := ch.Set(lx, y, lz, b)
	if !changed {
		return false
	}
	sec := ch.section(y >> 4)
	idx := voxel.Index(lx, y&15, lz)
	if s.Props != nil {
		sec.tm.Set(idx, voxel.Classify(s.Props, voxel.State(b)))
	} else {
		sec.tm.Set(idx, voxel.Unknown)
	}

	s.mu.RLock()
	o := s.observer
	s.mu.RUnlock()
	if o != nil {
		p := voxel.Pos{X: x, Y: y, Z: z}
		if emptiness {
			o.NotifySectionEmptinessChanged(p.Section(), sec.count == 0)
		}
		o.NotifyVoxelChanged(p)
	}
	return true
}

func (s *ChunkStore) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch := s.Peek(cx, cz); ch != nil {
		return ch
	}
	ch := newChunk(cx, cz, s.Gen.MinSection, s.Gen.MaxSection)
	s.GenerateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	ch.ready.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.Chunks[k]; ok {
		return prev
	}
	s.Chunks[k] = ch
	return ch
}

// LoadArea generates every chunk within radius of the center and returns
// their positions.
func (s *ChunkStore) LoadArea(center voxel.ChunkPos, radius int) []voxel.ChunkPos {
	out := make([]voxel.ChunkPos, 0, (2*radius+1)*(2*radius+1))
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			ch := s.GetOrGenChunk(center.X+dx, center.Z+dz)
			out = append(out, voxel.ChunkPos{X: ch.CX, Z: ch.CZ})
		}
	}
	return out
}

// Unload drops a chunk and its light.
func (s *ChunkStore) Unload(cx, cz int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ChunkKey{CX: cx, CZ: cz}
	if _, ok := s.Chunks[k]; !ok {
		return false
	}
	delete(s.Chunks, k)
	return true
}
