package voxel

import "fmt"

// SectionSize is the edge length of a section and the width of a chunk.
const SectionSize = 16

// SectionVolume is the number of voxels in one section.
const SectionVolume = SectionSize * SectionSize * SectionSize

type Pos struct {
	X, Y, Z int
}

type ChunkPos struct {
	X, Z int
}

type SectionPos struct {
	X, Y, Z int
}

func (p Pos) Chunk() ChunkPos {
	return ChunkPos{X: FloorDiv(p.X, SectionSize), Z: FloorDiv(p.Z, SectionSize)}
}

func (p Pos) Section() SectionPos {
	return SectionPos{
		X: FloorDiv(p.X, SectionSize),
		Y: FloorDiv(p.Y, SectionSize),
		Z: FloorDiv(p.Z, SectionSize),
	}
}

// Index is the voxel index inside the owning section: x | z<<4 | y<<8.
func (p Pos) Index() int {
	return Index(Mod(p.X, SectionSize), Mod(p.Y, SectionSize), Mod(p.Z, SectionSize))
}

func (p Pos) Offset(f Face) Pos {
	d := f.Offset()
	return Pos{X: p.X + d[0], Y: p.Y + d[1], Z: p.Z + d[2]}
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Distance is the Chebyshev distance between two chunk columns.
func (c ChunkPos) Distance(o ChunkPos) int {
	return max(abs(c.X-o.X), abs(c.Z-o.Z))
}

func (c ChunkPos) Section(y int) SectionPos {
	return SectionPos{X: c.X, Y: y, Z: c.Z}
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Z)
}

func (s SectionPos) Chunk() ChunkPos {
	return ChunkPos{X: s.X, Z: s.Z}
}

// Origin is the lowest world position covered by the section.
func (s SectionPos) Origin() Pos {
	return Pos{X: s.X * SectionSize, Y: s.Y * SectionSize, Z: s.Z * SectionSize}
}

func (s SectionPos) String() string {
	return fmt.Sprintf("<%d,%d,%d>", s.X, s.Y, s.Z)
}

// Index packs local section coordinates, each in [0,16).
func Index(x, y, z int) int {
	return x | z<<4 | y<<8
}

// Unindex is the inverse of Index.
func Unindex(i int) (x, y, z int) {
	return i & 15, (i >> 8) & 15, (i >> 4) & 15
}

// FloorDiv divides rounding toward negative infinity; b must be positive.
func FloorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

// Mod is the non-negative remainder matching FloorDiv.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
