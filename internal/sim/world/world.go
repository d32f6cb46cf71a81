// Package world runs one lit voxel world: a chunk store, its light System
// and the observers watching it. All mutation happens on the loop goroutine
// started by Run; published light may be read from anywhere.
package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	"voxelcraft.ai/lumen/internal/sim/tuning"
	"voxelcraft.ai/lumen/internal/sim/world/terrain/store"
)

var (
	ErrOutOfBounds = errors.New("world: position out of bounds")
	ErrStopped     = errors.New("world: stopped")
)

// SectionUpdate is one section whose published light changed during a step.
type SectionUpdate struct {
	Tick    uint64
	Pos     voxel.SectionPos
	Channel engine.Channel
	Light   nibble.Persisted
}

// SectionSink receives the light updates of every step, on the loop
// goroutine, in section order.
type SectionSink interface {
	SectionsPublished(updates []SectionUpdate)
}

// LightSource supplies saved light for chunks about to be lit.
type LightSource interface {
	LoadChunk(ctx context.Context, pos voxel.ChunkPos) (light.ChunkPayload, bool, error)
}

type Option func(*World)

func WithLogger(log *zap.Logger) Option {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

func WithSink(s SectionSink) Option {
	return func(w *World) {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
}

func WithLightSource(src LightSource) Option {
	return func(w *World) { w.source = src }
}

// withChunks starts the world from already loaded chunks.
func withChunks(cs *store.ChunkStore) Option {
	return func(w *World) { w.chunks = cs }
}

type sectionKey struct {
	pos voxel.SectionPos
	ch  engine.Channel
}

// World is a single-threaded authoritative light simulation.
type World struct {
	cfg      tuning.Tuning
	catalogs *catalogs.Catalogs
	log      *zap.Logger

	tick atomic.Uint64

	chunks *store.ChunkStore
	light  *light.System
	sinks  []SectionSink
	source LightSource

	dirtyMu sync.Mutex
	dirty   map[sectionKey]struct{}

	// Loop-owned.
	observers map[string]*observerClient
	nObs      atomic.Int64

	edits         chan EditRequest
	blockReq      chan blockReq
	snapReq       chan snapshotReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg tuning.Tuning, cats *catalogs.Catalogs, opts ...Option) (*World, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		log:           zap.NewNop(),
		dirty:         make(map[sectionKey]struct{}),
		observers:     make(map[string]*observerClient),
		edits:         make(chan EditRequest, 1024),
		blockReq:      make(chan blockReq, 256),
		snapReq:       make(chan snapshotReq, 4),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 256),
		observerLeave: make(chan string, 64),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.String("world", cfg.WorldID))
	if w.chunks == nil {
		w.chunks = store.NewChunkStore(store.NewWorldGen(cfg, &cats.Blocks), &cats.Blocks)
	}
	w.light = light.New(w.chunks, &cats.Blocks, light.Config{
		Block:     cfg.Light.Block,
		Sky:       cfg.Light.Sky,
		Workers:   cfg.Light.Workers,
		PoolLimit: cfg.Light.PoolLimit,
	}, light.WithLogger(w.log), light.WithListener(w.markDirty))
	w.chunks.SetObserver(w.light)
	return w, nil
}

func (w *World) Config() tuning.Tuning        { return w.cfg }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }
func (w *World) Light() *light.System         { return w.light }
func (w *World) CurrentTick() uint64          { return w.tick.Load() }

func (w *World) Edits() chan<- EditRequest                           { return w.edits }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest            { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                        { return w.observerLeave }

// Done is closed once Run has returned.
func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) markDirty(pos voxel.SectionPos, ch engine.Channel) {
	w.dirtyMu.Lock()
	w.dirty[sectionKey{pos: pos, ch: ch}] = struct{}{}
	w.dirtyMu.Unlock()
}

func (w *World) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.closeObservers()

	interval := time.Duration(w.cfg.Light.PropagateEveryMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []EditRequest
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.edits:
			pendingEdits = append(pendingEdits, req)
		case req := <-w.blockReq:
			req.resp <- w.blockName(req.pos)
		case req := <-w.snapReq:
			req.resp <- w.ExportSnapshot()
		case req := <-w.observerJoin:
			w.handleObserverJoin(ctx, req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(ctx, req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-ticker.C:
			w.step(pendingEdits)
			pendingEdits = pendingEdits[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Close releases the light workers. Call it after Run has returned.
func (w *World) Close() { w.light.Close() }

// step applies queued edits, propagates their light and publishes the
// changed sections.
func (w *World) step(edits []EditRequest) {
	tick := w.tick.Add(1)
	results := make([]EditResult, len(edits))
	for i, req := range edits {
		results[i] = w.applyEdit(req, tick)
	}
	if n, err := w.light.PropagatePendingChanges(); err != nil {
		w.log.Warn("light propagation failed", zap.Uint64("tick", tick), zap.Error(err))
	} else if n > 0 {
		w.log.Debug("light propagated", zap.Uint64("tick", tick), zap.Int("chunks", n))
	}
	w.flushUpdates(tick)
	for i, req := range edits {
		if req.Resp != nil {
			req.Resp <- results[i]
		}
	}
}

// flushUpdates hands every dirty section to the sinks and observers.
func (w *World) flushUpdates(tick uint64) []SectionUpdate {
	w.dirtyMu.Lock()
	if len(w.dirty) == 0 {
		w.dirtyMu.Unlock()
		return nil
	}
	dirty := w.dirty
	w.dirty = make(map[sectionKey]struct{})
	w.dirtyMu.Unlock()

	updates := make([]SectionUpdate, 0, len(dirty))
	for k := range dirty {
		p, ok := w.view(k.ch).SectionPayload(k.pos)
		if !ok {
			continue
		}
		updates = append(updates, SectionUpdate{Tick: tick, Pos: k.pos, Channel: k.ch, Light: p})
	}
	sortUpdates(updates)
	for _, s := range w.sinks {
		s.SectionsPublished(updates)
	}
	w.broadcast(updates)
	return updates
}
