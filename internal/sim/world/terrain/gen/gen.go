package gen

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

func FloorDiv(a, b int) int { return voxel.FloorDiv(a, b) }
func Mod(a, b int) int      { return voxel.Mod(a, b) }

// splitmix64 finalizer
func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 hashes a column; coordinates are truncated to 32 bits so chunk data
// stays stable across platforms.
func Hash2(seed int64, x, z int) uint64 {
	v := uint64(seed) ^ lane(x)*0x9e3779b97f4a7c15 ^ lane(z)*0xbf58476d1ce4e5b9
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	v := uint64(seed) ^ lane(x)*0x9e3779b97f4a7c15 ^ lane(y)*0xc2b2ae3d27d4eb4f ^ lane(z)*0xbf58476d1ce4e5b9
	return mix64(v)
}

func lane(v int) uint64 { return uint64(uint32(int32(v))) }

func BiomeFrom(noise uint64) string {
	switch noise % 3 {
	case 0:
		return "PLAINS"
	case 1:
		return "FOREST"
	default:
		return "DESERT"
	}
}

func BiomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := FloorDiv(x, regionSize)
	rz := FloorDiv(z, regionSize)
	return BiomeFrom(Hash2(seed, rx, rz))
}

// ValueNoise2 interpolates hashed lattice values spaced cell blocks apart and
// returns a value in [0, 1000].
func ValueNoise2(seed int64, x, z, cell int) int {
	if cell <= 0 {
		cell = 1
	}
	gx, gz := FloorDiv(x, cell), FloorDiv(z, cell)
	fx, fz := Mod(x, cell), Mod(z, cell)
	corner := func(dx, dz int) int {
		return int(Hash2(seed, gx+dx, gz+dz) % 1001)
	}
	top := corner(0, 0)*(cell-fx) + corner(1, 0)*fx
	bottom := corner(0, 1)*(cell-fx) + corner(1, 1)*fx
	return (top*(cell-fz) + bottom*fz) / (cell * cell)
}

// HeightAt is the surface y of the column at (x, z): base plus up to
// variation blocks of two octaves of value noise.
func HeightAt(seed int64, x, z, base, variation int) int {
	if variation <= 0 {
		return base
	}
	n := (ValueNoise2(seed, x, z, 32)*3 + ValueNoise2(seed+1, x, z, 8)) / 4
	return base + n*variation/1000
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}
