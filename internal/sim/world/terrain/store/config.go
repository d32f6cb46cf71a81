package store

import (
	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/tuning"
)

// NewWorldGen resolves generator settings and block ids.
func NewWorldGen(t tuning.Tuning, blocks *catalogs.BlockCatalog) WorldGen {
	id := func(name string) uint16 { return uint16(blocks.MustID(name)) }
	return WorldGen{
		Seed:       t.Seed,
		BoundaryR:  t.BoundaryR,
		MinSection: t.MinSection,
		MaxSection: t.MaxSection,

		BaseHeight:                  t.Gen.BaseHeight,
		HeightVariation:             t.Gen.HeightVariation,
		SeaLevel:                    t.Gen.SeaLevel,
		BiomeRegionSize:             t.Gen.BiomeRegionSize,
		OreClusterProbScalePermille: t.Gen.OreClusterProbScalePermille,
		GlowPermille:                t.Gen.GlowPermille,
		TreePermille:                t.Gen.TreePermille,
		SlabPermille:                t.Gen.SlabPermille,
		TorchPermille:               t.Gen.TorchPermille,

		Air:        id("AIR"),
		Dirt:       id("DIRT"),
		Grass:      id("GRASS"),
		Sand:       id("SAND"),
		Stone:      id("STONE"),
		Gravel:     id("GRAVEL"),
		Log:        id("LOG"),
		Leaves:     id("LEAVES"),
		Water:      id("WATER"),
		Glowstone:  id("GLOWSTONE"),
		Torch:      id("TORCH"),
		Slab:       id("STONE_SLAB"),
		CoalOre:    id("COAL_ORE"),
		IronOre:    id("IRON_ORE"),
		CrystalOre: id("CRYSTAL_ORE"),
	}
}
