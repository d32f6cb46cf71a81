package light

import (
	"sync"

	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// lightEngine is what both channel engines offer.
type lightEngine interface {
	LightChunk(pos voxel.ChunkPos, edgeCheck bool) error
	RelightChunk(pos voxel.ChunkPos) error
	CheckEdges(pos voxel.ChunkPos) error
	BlocksChanged(pos voxel.ChunkPos, changed []voxel.Pos, sectionsChanged bool) error
	Stats() engine.Stats
}

// enginePool hands out idle engines and builds a new one when none is free,
// so callers never wait. An engine is only ever used by one goroutine at a
// time.
type enginePool struct {
	newEngine func() lightEngine

	mu      sync.Mutex
	free    []lightEngine
	created int
	gets    uint64
	// totals folds in each engine's counters as it is returned.
	totals engine.Stats
	seen   map[lightEngine]engine.Stats
}

// PoolStats summarises one channel's engines.
type PoolStats struct {
	Engines int
	Idle    int
	Gets    uint64
	engine.Stats
}

func newEnginePool(newEngine func() lightEngine) *enginePool {
	return &enginePool{newEngine: newEngine, seen: make(map[lightEngine]engine.Stats)}
}

func (p *enginePool) get() lightEngine {
	p.mu.Lock()
	p.gets++
	if n := len(p.free); n > 0 {
		e := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return e
	}
	p.created++
	p.mu.Unlock()
	return p.newEngine()
}

func (p *enginePool) put(e lightEngine) {
	cur := e.Stats()
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.seen[e]
	p.totals.Passes += cur.Passes - prev.Passes
	p.totals.IncreaseEntries += cur.IncreaseEntries - prev.IncreaseEntries
	p.totals.DecreaseEntries += cur.DecreaseEntries - prev.DecreaseEntries
	p.totals.SectionsPublished += cur.SectionsPublished - prev.SectionsPublished
	p.totals.EdgeRepairs += cur.EdgeRepairs - prev.EdgeRepairs
	p.seen[e] = cur
	p.free = append(p.free, e)
}

func (p *enginePool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Engines: p.created, Idle: len(p.free), Gets: p.gets, Stats: p.totals}
}
