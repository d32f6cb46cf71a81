// Package light keeps the block and sky light of one world up to date.
//
// A System owns a pool of propagation engines per channel. Hosts report voxel
// changes as they happen and drain them in batches with
// PropagatePendingChanges; chunks are lit once with ComputeInitialLight or in
// bulk with LightChunks. Readers use LightLevel or the channel views, which
// only ever see published light.
package light

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// ErrNotLit is returned when a chunk's light is asked for before the chunk
// has been lit.
var ErrNotLit = errors.New("light: chunk not lit")

type Config struct {
	Block bool
	Sky   bool
	// Workers bounds the parallelism of LightChunks.
	Workers int
	// PoolLimit bounds the spare nibble buffers each engine keeps.
	PoolLimit int
}

func DefaultConfig() Config {
	return Config{Block: true, Sky: true, Workers: 4, PoolLimit: 64}
}

type Option func(*System)

func WithLogger(log *zap.Logger) Option {
	return func(s *System) {
		if log != nil {
			s.log = log
		}
	}
}

// WithListener adds a callback fired for every section whose published light
// changed. Listeners may be called from several goroutines at once.
func WithListener(l engine.Listener) Option {
	return func(s *System) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

type pendingChunk struct {
	voxels          map[voxel.Pos]struct{}
	sectionsChanged bool
}

// System is the light coordinator of one world. Calls that light different
// chunks may run concurrently as long as their 3x3 neighbourhoods do not
// overlap; LightChunks arranges that itself.
type System struct {
	world     engine.World
	props     voxel.Properties
	cfg       Config
	log       *zap.Logger
	listeners []engine.Listener

	block *enginePool
	sky   *enginePool

	mu      sync.Mutex
	pending map[voxel.ChunkPos]*pendingChunk

	workers pond.Pool

	chunksLit    atomic.Uint64
	relights     atomic.Uint64
	edgeChecks   atomic.Uint64
	propagations atomic.Uint64
	published    atomic.Uint64
}

func New(world engine.World, props voxel.Properties, cfg Config, opts ...Option) *System {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &System{
		world:   world,
		props:   props,
		cfg:     cfg,
		log:     zap.NewNop(),
		pending: make(map[voxel.ChunkPos]*pendingChunk),
	}
	for _, opt := range opts {
		opt(s)
	}
	ecfg := engine.Config{
		World:     world,
		Props:     props,
		Listener:  s.sectionPublished,
		Logger:    s.log,
		PoolLimit: cfg.PoolLimit,
	}
	if cfg.Block {
		s.block = newEnginePool(func() lightEngine { return engine.NewBlockEngine(ecfg) })
	}
	if cfg.Sky {
		s.sky = newEnginePool(func() lightEngine { return engine.NewSkyEngine(ecfg) })
	}
	s.workers = pond.NewPool(cfg.Workers)
	s.log.Info("light system started",
		zap.Bool("block", cfg.Block),
		zap.Bool("sky", cfg.Sky),
		zap.Int("workers", cfg.Workers),
		zap.Int("min_section", world.MinSection()),
		zap.Int("max_section", world.MaxSection()))
	return s
}

// Close stops the LightChunks workers.
func (s *System) Close() {
	s.workers.StopAndWait()
}

func (s *System) sectionPublished(pos voxel.SectionPos, ch engine.Channel) {
	s.published.Add(1)
	for _, l := range s.listeners {
		l(pos, ch)
	}
}

func (s *System) pool(ch engine.Channel) *enginePool {
	if ch == engine.SkyLight {
		return s.sky
	}
	return s.block
}

// Enabled reports whether ch is computed at all.
func (s *System) Enabled(ch engine.Channel) bool {
	return s.pool(ch) != nil
}

// withEngine runs fn on a pooled engine of ch; disabled channels are a no-op.
func (s *System) withEngine(ch engine.Channel, fn func(lightEngine) error) error {
	p := s.pool(ch)
	if p == nil {
		return nil
	}
	e := p.get()
	defer p.put(e)
	return fn(e)
}

// NotifyVoxelChanged records a voxel whose state changed. It is cheap and safe
// to call from any goroutine.
func (s *System) NotifyVoxelChanged(p voxel.Pos) {
	s.mu.Lock()
	s.pendingFor(p.Chunk()).voxels[p] = struct{}{}
	s.mu.Unlock()
}

// NotifySectionEmptinessChanged records that a section gained its first or
// lost its last non-air voxel.
func (s *System) NotifySectionEmptinessChanged(sec voxel.SectionPos, empty bool) {
	s.mu.Lock()
	s.pendingFor(sec.Chunk()).sectionsChanged = true
	s.mu.Unlock()
}

func (s *System) pendingFor(pos voxel.ChunkPos) *pendingChunk {
	p := s.pending[pos]
	if p == nil {
		p = &pendingChunk{voxels: make(map[voxel.Pos]struct{})}
		s.pending[pos] = p
	}
	return p
}

// PendingChunks is the number of chunks with unpropagated changes.
func (s *System) PendingChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PropagatePendingChanges applies every recorded change, chunk by chunk, sky
// light first. Changes in chunks that are unloaded or not lit yet are dropped:
// lighting such a chunk later accounts for them. It returns the number of
// chunks updated.
func (s *System) PropagatePendingChanges() (int, error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	pending := s.pending
	s.pending = make(map[voxel.ChunkPos]*pendingChunk)
	s.mu.Unlock()

	order := make([]voxel.ChunkPos, 0, len(pending))
	for pos := range pending {
		order = append(order, pos)
	}
	slices.SortFunc(order, compareChunks)

	var errs []error
	n := 0
	for _, pos := range order {
		c := s.world.Chunk(pos.X, pos.Z)
		if c == nil || !c.Light().Lit() {
			continue
		}
		p := pending[pos]
		changed := make([]voxel.Pos, 0, len(p.voxels))
		for v := range p.voxels {
			changed = append(changed, v)
		}
		for _, ch := range []engine.Channel{engine.SkyLight, engine.BlockLight} {
			err := s.withEngine(ch, func(e lightEngine) error {
				return e.BlocksChanged(pos, changed, p.sectionsChanged)
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s light %s: %w", ch, pos, err))
			}
		}
		n++
	}
	s.propagations.Add(uint64(n))
	if len(errs) > 0 {
		s.log.Warn("propagating light changes failed", zap.Int("errors", len(errs)), zap.Error(errs[0]))
	}
	return n, errors.Join(errs...)
}

// ComputeInitialLight lights a chunk from scratch and marks it lit. Without
// edgeCheck all eight neighbours must be loaded and ready.
func (s *System) ComputeInitialLight(pos voxel.ChunkPos, edgeCheck bool) error {
	c := s.world.Chunk(pos.X, pos.Z)
	if c == nil {
		return fmt.Errorf("%w: %s", engine.ErrUnknownChunk, pos)
	}
	for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
		err := s.withEngine(ch, func(e lightEngine) error {
			return e.LightChunk(pos, edgeCheck)
		})
		if err != nil {
			return fmt.Errorf("%s light %s: %w", ch, pos, err)
		}
	}
	c.Light().SetLit(true)
	s.chunksLit.Add(1)
	return nil
}

// RecomputeChunk discards a lit chunk's light and lights it again, pulling
// back whatever it had pushed into its neighbours.
func (s *System) RecomputeChunk(pos voxel.ChunkPos) error {
	c := s.world.Chunk(pos.X, pos.Z)
	if c == nil {
		return fmt.Errorf("%w: %s", engine.ErrUnknownChunk, pos)
	}
	if !c.Light().Lit() {
		return s.ComputeInitialLight(pos, true)
	}
	for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
		err := s.withEngine(ch, func(e lightEngine) error {
			return e.RelightChunk(pos)
		})
		if err != nil {
			return fmt.Errorf("%s light %s: %w", ch, pos, err)
		}
	}
	s.relights.Add(1)
	return nil
}

// CheckEdges repairs the seams between a lit chunk and its lit neighbours.
func (s *System) CheckEdges(pos voxel.ChunkPos) error {
	for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
		err := s.withEngine(ch, func(e lightEngine) error {
			return e.CheckEdges(pos)
		})
		if err != nil {
			return fmt.Errorf("%s light %s: %w", ch, pos, err)
		}
	}
	s.edgeChecks.Add(1)
	return nil
}

type Stats struct {
	ChunksLit         uint64
	Relights          uint64
	EdgeChecks        uint64
	Propagations      uint64
	SectionsPublished uint64
	PendingChunks     int
	Block             PoolStats
	Sky               PoolStats
}

func (s *System) Stats() Stats {
	st := Stats{
		ChunksLit:         s.chunksLit.Load(),
		Relights:          s.relights.Load(),
		EdgeChecks:        s.edgeChecks.Load(),
		Propagations:      s.propagations.Load(),
		SectionsPublished: s.published.Load(),
		PendingChunks:     s.PendingChunks(),
	}
	if s.block != nil {
		st.Block = s.block.stats()
	}
	if s.sky != nil {
		st.Sky = s.sky.stats()
	}
	return st
}

func compareChunks(a, b voxel.ChunkPos) int {
	return cmp.Or(cmp.Compare(a.Z, b.Z), cmp.Compare(a.X, b.X))
}
