package store

import (
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	genpkg "voxelcraft.ai/lumen/internal/sim/world/terrain/gen"
)

func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	g := &s.Gen
	bottom := g.MinSection * 16
	top := (g.MaxSection+1)*16 - 1

	var heights [16 * 16]int
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z
			biome := genpkg.BiomeAt(g.Seed, wx, wz, g.BiomeRegionSize)
			h := genpkg.HeightAt(g.Seed, wx, wz, g.BaseHeight, g.HeightVariation)
			h = min(max(h, bottom), top)
			heights[x+z*16] = h

			for y := bottom; y <= h; y++ {
				ch.put(x, y, z, s.columnBlock(biome, wx, y, wz, h))
			}
			for y := h + 1; y <= min(g.SeaLevel, top); y++ {
				ch.put(x, y, z, g.Water)
			}
			if h < g.SeaLevel || h+1 > top {
				continue
			}

			roll := genpkg.Hash2(g.Seed+999, wx, wz) % 1000
			torch := uint64(genpkg.ClampPermille(g.TorchPermille))
			slab := torch + uint64(genpkg.ClampPermille(g.SlabPermille))
			switch {
			case roll < torch:
				ch.put(x, h+1, z, g.Torch)
			case roll < slab && biome == "DESERT":
				ch.put(x, h+1, z, g.Slab)
			}
		}
	}

	// Trees stay inside the chunk so generation never writes a neighbour.
	for z := 2; z < 14; z++ {
		for x := 2; x < 14; x++ {
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z
			if genpkg.BiomeAt(g.Seed, wx, wz, g.BiomeRegionSize) != "FOREST" {
				continue
			}
			h := heights[x+z*16]
			if h < g.SeaLevel || h+6 > top {
				continue
			}
			if genpkg.Hash2(g.Seed+201, wx, wz)%1000 >= uint64(genpkg.ClampPermille(g.TreePermille)) {
				continue
			}
			s.placeTree(ch, x, h+1, z)
		}
	}

	for _, sec := range ch.sections {
		if sec != nil {
			sec.recount()
		}
	}
}

func (s *ChunkStore) columnBlock(biome string, wx, y, wz, h int) uint16 {
	g := &s.Gen
	depth := h - y
	switch {
	case depth == 0:
		if biome == "DESERT" || h < g.SeaLevel {
			return g.Sand
		}
		return g.Grass
	case depth <= 3:
		if biome == "DESERT" {
			return g.Sand
		}
		return g.Dirt
	}

	roll := genpkg.Hash3(g.Seed+100, wx, y, wz)
	switch {
	case roll%1000 < uint64(genpkg.ClampPermille(g.GlowPermille)):
		return g.Glowstone
	case genpkg.InCluster(g.Seed+101, wx, wz, 192, 2, genpkg.ScalePermille(200, g.OreClusterProbScalePermille)) && depth > 12 && roll%3 == 0:
		return g.CrystalOre
	case genpkg.InCluster(g.Seed+102, wx, wz, 128, 3, genpkg.ScalePermille(450, g.OreClusterProbScalePermille)) && depth > 8 && roll%3 == 1:
		return g.IronOre
	case genpkg.InCluster(g.Seed+104, wx, wz, 64, 4, genpkg.ScalePermille(650, g.OreClusterProbScalePermille)) && roll%2 == 0:
		return g.CoalOre
	case genpkg.InCluster(g.Seed+204, wx, wz, 96, 2, genpkg.ScalePermille(180, 1000)) && depth <= 6:
		return g.Gravel
	}
	return g.Stone
}

func (s *ChunkStore) placeTree(ch *Chunk, x, y, z int) {
	g := &s.Gen
	for dy := 2; dy <= 4; dy++ {
		r := 2
		if dy == 4 {
			r = 1
		}
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if ch.Get(x+dx, y+dy, z+dz) == g.Air {
					ch.put(x+dx, y+dy, z+dz, g.Leaves)
				}
			}
		}
	}
	for dy := 0; dy < 4; dy++ {
		ch.put(x, y+dy, z, g.Log)
	}
}

// put writes without bookkeeping; GenerateChunk recounts afterwards.
func (c *Chunk) put(x, y, z int, b uint16) {
	i := (y >> 4) - c.minSection
	if i < 0 || i >= len(c.sections) {
		return
	}
	if c.sections[i] == nil {
		if b == 0 {
			return
		}
		c.sections[i] = &Section{}
	}
	c.sections[i].Blocks[voxel.Index(x, y&15, z)] = b
}
