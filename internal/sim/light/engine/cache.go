package engine

import (
	"fmt"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// The cache window is 5x5 chunks so that any position a pass can touch (the
// center chunk, its 8 neighbours and one voxel beyond) has a slot. Only the
// inner 3x3 is ever populated.
const (
	windowSize   = 5
	windowRadius = 2
	windowChunks = windowSize * windowSize
	windowWidth  = windowSize * voxel.SectionSize
)

// Config is what both engines are built from.
type Config struct {
	World    World
	Props    voxel.Properties
	Listener Listener
	Logger   *zap.Logger
	// PoolLimit bounds the number of spare buffers kept by the engine.
	PoolLimit int
}

// core holds the state shared by the block and sky engines: the chunk window,
// the flood-fill queues and the buffer pool. It is not safe for concurrent use.
type core struct {
	channel  Channel
	rules    channelRules
	world    World
	props    voxel.Properties
	listener Listener
	log      *zap.Logger
	pool     *nibble.Pool

	minSection int
	minLight   int
	blockCount int
	lightCount int
	height     int

	center  voxel.ChunkPos
	originX int
	originY int
	originZ int
	active  bool

	chunks   [windowChunks]Chunk
	lit      [windowChunks]bool
	sections []Section
	stores   []*nibble.Store
	touched  []bool
	dirty    []int

	increase deque.Deque[entry]
	decrease deque.Deque[entry]

	stats Stats
}

// channelRules is the part of a pass that differs between block and sky light.
type channelRules interface {
	// emission is the level a voxel keeps after a decrease clears it.
	emission(s voxel.State) int
	// checkBlock re-evaluates one voxel whose state or neighbourhood changed.
	checkBlock(x, y, z int)
	// prepareCenter discards the center chunk's light and initialises the
	// sections it now requires.
	prepareCenter()
	// seedSources queues the center chunk's own light sources.
	seedSources()
	// propagateChanges queues the effect of voxel changes in the center chunk.
	propagateChanges(changed []voxel.Pos)
}

// Stats are cumulative counters of one engine.
type Stats struct {
	Passes            uint64
	IncreaseEntries   uint64
	DecreaseEntries   uint64
	SectionsPublished uint64
	EdgeRepairs       uint64
}

func newCore(ch Channel, cfg Config) core {
	if cfg.World == nil || cfg.Props == nil {
		panic("light: engine needs a world and voxel properties")
	}
	minSection, maxSection := cfg.World.MinSection(), cfg.World.MaxSection()
	if maxSection < minSection {
		panic(fmt.Sprintf("light: bad section range %d..%d", minSection, maxSection))
	}
	blockCount := maxSection - minSection + 1
	lightCount := blockCount + 2
	if lightCount*voxel.SectionSize > maxLocalY {
		panic(fmt.Sprintf("light: world too tall (%d sections)", blockCount))
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return core{
		channel:    ch,
		world:      cfg.World,
		props:      cfg.Props,
		listener:   cfg.Listener,
		log:        log.With(zap.Stringer("channel", ch)),
		pool:       nibble.NewPool(cfg.PoolLimit),
		minSection: minSection,
		minLight:   minSection - 1,
		blockCount: blockCount,
		lightCount: lightCount,
		height:     lightCount * voxel.SectionSize,
		sections:   make([]Section, windowChunks*blockCount),
		stores:     make([]*nibble.Store, windowChunks*lightCount),
		touched:    make([]bool, windowChunks*lightCount),
	}
}

func (c *core) Stats() Stats       { return c.stats }
func (c *core) Pool() *nibble.Pool { return c.pool }

// setupCache fills the window around center. In relaxed mode missing or
// unready neighbours are skipped; otherwise they fail the call.
func (c *core) setupCache(center voxel.ChunkPos, relaxed bool) error {
	if c.active {
		panic("light: engine re-entered")
	}
	c.center = center
	c.originX = (center.X - windowRadius) * voxel.SectionSize
	c.originY = c.minLight * voxel.SectionSize
	c.originZ = (center.Z - windowRadius) * voxel.SectionSize
	c.active = true

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			ch := c.world.Chunk(center.X+dx, center.Z+dz)
			if ch == nil || (!ch.Ready() && (dx != 0 || dz != 0)) {
				if dx == 0 && dz == 0 {
					return fmt.Errorf("%w: %s", ErrUnknownChunk, center)
				}
				if !relaxed {
					return fmt.Errorf("%w: %s next to %s", ErrNeighborMissing,
						voxel.ChunkPos{X: center.X + dx, Z: center.Z + dz}, center)
				}
				continue
			}
			slot := (dx + windowRadius) + (dz+windowRadius)*windowSize
			light := ch.Light()
			c.chunks[slot] = ch
			c.lit[slot] = light.Lit()
			copy(c.stores[slot*c.lightCount:(slot+1)*c.lightCount], light.Stores(c.channel))
			for b := 0; b < c.blockCount; b++ {
				c.sections[slot*c.blockCount+b] = ch.Section(c.minSection + b)
			}
		}
	}
	return nil
}

func (c *core) teardown() {
	for i := range c.chunks {
		c.chunks[i] = nil
		c.lit[i] = false
	}
	clear(c.sections)
	clear(c.stores)
	for _, i := range c.dirty {
		c.touched[i] = false
	}
	c.dirty = c.dirty[:0]
	c.increase.Clear()
	c.decrease.Clear()
	c.active = false
}

// run wraps one engine entry point: window setup, the pass, then publishing.
// Nothing is published when the pass fails.
func (c *core) run(center voxel.ChunkPos, relaxed bool, pass func() error) error {
	defer c.teardown()
	if err := c.setupCache(center, relaxed); err != nil {
		return err
	}
	c.stats.Passes++
	if err := pass(); err != nil {
		return err
	}
	c.publish()
	return nil
}

func (c *core) publish() {
	for _, i := range c.dirty {
		s := c.stores[i]
		if s == nil || !s.Publish() {
			continue
		}
		c.stats.SectionsPublished++
		if c.listener != nil {
			slot, j := i/c.lightCount, i%c.lightCount
			c.listener(c.sectionPos(slot, j), c.channel)
		}
	}
}

func (c *core) sectionPos(slot, j int) voxel.SectionPos {
	return voxel.SectionPos{
		X: c.center.X + slot%windowSize - windowRadius,
		Y: c.minLight + j,
		Z: c.center.Z + slot/windowSize - windowRadius,
	}
}

func slotOf(x, z int) int {
	return x>>4 + (z>>4)*windowSize
}

func (c *core) touch(i int) {
	if !c.touched[i] {
		c.touched[i] = true
		c.dirty = append(c.dirty, i)
	}
}

// storeIndex returns the index into c.stores for a local position, or -1.
func (c *core) storeIndex(x, y, z int) int {
	if y < 0 || y >= c.height || x < 0 || x >= windowWidth || z < 0 || z >= windowWidth {
		return -1
	}
	return slotOf(x, z)*c.lightCount + y>>4
}

func (c *core) storeAt(x, y, z int) *nibble.Store {
	i := c.storeIndex(x, y, z)
	if i < 0 {
		return nil
	}
	return c.stores[i]
}

// level reads the updating value, -1 for voxels without a usable store.
func (c *core) level(x, y, z int) int {
	s := c.storeAt(x, y, z)
	if s == nil || s.IsNullUpdating() {
		return -1
	}
	return s.Get(voxel.Index(x&15, y&15, z&15))
}

func (c *core) setLevel(x, y, z, level int) {
	i := c.storeIndex(x, y, z)
	if i < 0 || c.stores[i] == nil {
		return
	}
	c.stores[i].Set(c.pool, voxel.Index(x&15, y&15, z&15), level)
	c.touch(i)
}

func (c *core) section(x, y, z int) Section {
	b := y>>4 - 1
	if b < 0 || b >= c.blockCount || x < 0 || x >= windowWidth || z < 0 || z >= windowWidth {
		return nil
	}
	return c.sections[slotOf(x, z)*c.blockCount+b]
}

func (c *core) state(x, y, z int) voxel.State {
	sec := c.section(x, y, z)
	if sec == nil {
		return voxel.Air
	}
	return sec.At(voxel.Index(x&15, y&15, z&15))
}

// classify returns the state and transparency class of a local position.
func (c *core) classify(x, y, z int) (voxel.State, voxel.Transparency) {
	sec := c.section(x, y, z)
	if sec == nil {
		return voxel.Air, voxel.Transparent
	}
	idx := voxel.Index(x&15, y&15, z&15)
	st := sec.At(idx)
	if tm := sec.Transparency(); tm != nil {
		return st, tm.Lookup(idx, st, c.props)
	}
	return st, voxel.Classify(c.props, st)
}

func (c *core) worldPos(x, y, z int) voxel.Pos {
	return voxel.Pos{X: x + c.originX, Y: y + c.originY, Z: z + c.originZ}
}

// local converts a world position, reporting false outside the window.
func (c *core) local(p voxel.Pos) (x, y, z int, ok bool) {
	x, y, z = p.X-c.originX, p.Y-c.originY, p.Z-c.originZ
	ok = x >= 0 && x < windowWidth && z >= 0 && z < windowWidth && y >= 0 && y < c.height
	return x, y, z, ok
}

// centerLocal is the local origin of the center chunk.
func (c *core) centerLocal() (x, z int) {
	return windowRadius * voxel.SectionSize, windowRadius * voxel.SectionSize
}

func centerSlot() int {
	return windowRadius + windowRadius*windowSize
}

// neighbourSlot returns the slot next to the center through a horizontal face.
func neighbourSlot(f voxel.Face) int {
	d := f.Offset()
	return (windowRadius + d[0]) + (windowRadius+d[2])*windowSize
}

func (c *core) slotStore(slot, j int) *nibble.Store {
	return c.stores[slot*c.lightCount+j]
}
