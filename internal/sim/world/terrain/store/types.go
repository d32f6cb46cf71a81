package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

type ChunkKey struct {
	CX int
	CZ int
}

func (k ChunkKey) Pos() voxel.ChunkPos { return voxel.ChunkPos{X: k.CX, Z: k.CZ} }

// Section is one 16³ block of voxels.
type Section struct {
	Blocks [voxel.SectionVolume]uint16
	count  int
	tm     voxel.TransparencyMap
}

func (s *Section) At(i int) voxel.State                 { return voxel.State(s.Blocks[i]) }
func (s *Section) IsEmpty() bool                        { return s.count == 0 }
func (s *Section) Transparency() *voxel.TransparencyMap { return &s.tm }

// recount rebuilds the non-air counter after a bulk fill.
func (s *Section) recount() {
	s.count = 0
	for _, b := range s.Blocks {
		if b != 0 {
			s.count++
		}
	}
}

type Chunk struct {
	CX, CZ int

	minSection int
	sections   []*Section // nil when never written
	light      *engine.ChunkLight
	ready      atomic.Bool

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, minSection, maxSection int) *Chunk {
	return &Chunk{
		CX:         cx,
		CZ:         cz,
		minSection: minSection,
		sections:   make([]*Section, maxSection-minSection+1),
		light:      engine.NewChunkLight(minSection, maxSection),
	}
}

// Section implements engine.Chunk. Empty sections are reported as absent.
func (c *Chunk) Section(y int) engine.Section {
	s := c.section(y)
	if s == nil || s.count == 0 {
		return nil
	}
	return s
}

func (c *Chunk) section(y int) *Section {
	i := y - c.minSection
	if i < 0 || i >= len(c.sections) {
		return nil
	}
	return c.sections[i]
}

func (c *Chunk) Light() *engine.ChunkLight { return c.light }
func (c *Chunk) Ready() bool               { return c.ready.Load() }

// Get reads a voxel by chunk-local coordinates; y is a world y.
func (c *Chunk) Get(x, y, z int) uint16 {
	s := c.section(y >> 4)
	if s == nil {
		return 0
	}
	return s.Blocks[voxel.Index(x, y&15, z)]
}

// Set writes a voxel and reports whether the section turned empty or
// non-empty. It returns changed=false when the voxel already held b.
func (c *Chunk) Set(x, y, z int, b uint16) (changed, emptiness bool) {
	i := (y >> 4) - c.minSection
	if i < 0 || i >= len(c.sections) {
		return false, false
	}
	s := c.sections[i]
	if s == nil {
		if b == 0 {
			return false, false
		}
		s = &Section{}
		c.sections[i] = s
	}
	idx := voxel.Index(x, y&15, z)
	old := s.Blocks[idx]
	if old == b {
		return false, false
	}
	wasEmpty := s.count == 0
	s.Blocks[idx] = b
	switch {
	case old == 0:
		s.count++
	case b == 0:
		s.count--
	}
	c.dirty = true
	return true, wasEmpty != (s.count == 0)
}

// NonEmptySections lists the world y of every section holding a non-air
// voxel, bottom up.
func (c *Chunk) NonEmptySections() []int {
	var out []int
	for i, s := range c.sections {
		if s != nil && s.count > 0 {
			out = append(out, c.minSection+i)
		}
	}
	return out
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for i, s := range c.sections {
			if s == nil || s.count == 0 {
				continue
			}
			binary.LittleEndian.PutUint16(tmp[:], uint16(i))
			h.Write(tmp[:])
			for _, v := range s.Blocks {
				binary.LittleEndian.PutUint16(tmp[:], v)
				h.Write(tmp[:])
			}
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type WorldGen struct {
	Seed       int64
	BoundaryR  int // blocks
	MinSection int
	MaxSection int

	BaseHeight                  int
	HeightVariation             int
	SeaLevel                    int
	BiomeRegionSize             int
	OreClusterProbScalePermille int
	GlowPermille                int
	TreePermille                int
	SlabPermille                int
	TorchPermille               int

	Air        uint16
	Dirt       uint16
	Grass      uint16
	Sand       uint16
	Stone      uint16
	Gravel     uint16
	Log        uint16
	Leaves     uint16
	Water      uint16
	Glowstone  uint16
	Torch      uint16
	Slab       uint16
	CoalOre    uint16
	IronOre    uint16
	CrystalOre uint16
}

// Observer is told about every block change, typically the light system.
type Observer interface {
	NotifyVoxelChanged(p voxel.Pos)
	NotifySectionEmptinessChanged(s voxel.SectionPos, empty bool)
}

// ChunkStore is the loaded world. Its chunk map is safe for concurrent use;
// block writes must not race with light passes over the same chunks.
type ChunkStore struct {
	Gen   WorldGen
	Props voxel.Properties

	mu       sync.RWMutex
	Chunks   map[ChunkKey]*Chunk
	observer Observer
}

func NewChunkStore(gen WorldGen, props voxel.Properties) *ChunkStore {
	return &ChunkStore{
		Gen:    gen,
		Props:  props,
		Chunks: map[ChunkKey]*Chunk{},
	}
}

// SetObserver installs the hook SetBlock reports to.
func (s *ChunkStore) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}
