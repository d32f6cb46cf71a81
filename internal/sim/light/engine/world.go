package engine

import (
	"errors"
	"sync/atomic"

	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// Channel selects block (emitted) or sky light.
type Channel uint8

const (
	BlockLight Channel = iota
	SkyLight
)

func (c Channel) String() string {
	if c == SkyLight {
		return "sky"
	}
	return "block"
}

var (
	// ErrNeighborMissing is returned when a non-relaxed call finds a chunk of
	// the 1-chunk neighbourhood absent or not ready. It is a call-order bug.
	ErrNeighborMissing = errors.New("light: neighbour chunk missing")
	ErrUnknownChunk    = errors.New("light: chunk not loaded")
)

// World is the host's chunk lookup.
type World interface {
	// Chunk returns nil when the chunk is not loaded.
	Chunk(x, z int) Chunk
	// MinSection and MaxSection bound the block sections, inclusive.
	MinSection() int
	MaxSection() int
}

type Chunk interface {
	// Section returns nil for sections that hold nothing but air.
	Section(y int) Section
	Light() *ChunkLight
	// Ready reports whether the chunk's voxels are final enough to light.
	Ready() bool
}

type Section interface {
	At(index int) voxel.State
	IsEmpty() bool
	// Transparency may return nil when the host keeps no cache.
	Transparency() *voxel.TransparencyMap
}

// Listener is told about every section whose visible light changed.
type Listener func(pos voxel.SectionPos, ch Channel)

// ChunkLight is the light data a host chunk carries. Light sections extend one
// section below and above the block sections.
type ChunkLight struct {
	minLight int
	block    []*nibble.Store
	sky      []*nibble.Store
	lit      atomic.Bool
}

// NewChunkLight creates Null stores for block sections minSection..maxSection.
func NewChunkLight(minSection, maxSection int) *ChunkLight {
	n := maxSection - minSection + 3
	l := &ChunkLight{
		minLight: minSection - 1,
		block:    make([]*nibble.Store, n),
		sky:      make([]*nibble.Store, n),
	}
	for i := 0; i < n; i++ {
		l.block[i] = nibble.NewNull()
		l.sky[i] = nibble.NewNull()
	}
	return l
}

func (l *ChunkLight) Stores(ch Channel) []*nibble.Store {
	if ch == SkyLight {
		return l.sky
	}
	return l.block
}

// Store returns the store for world section y, or nil outside the light range.
func (l *ChunkLight) Store(ch Channel, y int) *nibble.Store {
	stores := l.Stores(ch)
	i := y - l.minLight
	if i < 0 || i >= len(stores) {
		return nil
	}
	return stores[i]
}

func (l *ChunkLight) MinLightSection() int { return l.minLight }
func (l *ChunkLight) MaxLightSection() int { return l.minLight + len(l.block) - 1 }

func (l *ChunkLight) Lit() bool        { return l.lit.Load() }
func (l *ChunkLight) SetLit(lit bool) { l.lit.Store(lit) }
