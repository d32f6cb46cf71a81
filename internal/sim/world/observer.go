package world

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/observerproto"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
	Center    voxel.ChunkPos
	Radius    int
}

type ObserverSubscribeRequest struct {
	SessionID string
	Center    voxel.ChunkPos
	Radius    int
}

type observerClient struct {
	id     string
	out    chan []byte
	center voxel.ChunkPos
	radius int

	// subscribed is false until the first area has been sent.
	subscribed bool
	dropped    uint64
}

func (c *observerClient) covers(sec voxel.SectionPos) bool {
	return sec.Chunk().Distance(c.center) <= c.radius
}

func (w *World) clampRadius(r int) int {
	return min(max(r, 0), w.cfg.Observer.MaxRadius)
}

func (w *World) handleObserverJoin(ctx context.Context, req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	if old, ok := w.observers[req.SessionID]; ok {
		close(old.out)
	} else {
		w.nObs.Add(1)
	}
	c := &observerClient{id: req.SessionID, out: req.Out}
	w.observers[req.SessionID] = c
	w.log.Info("observer joined", zap.String("session", c.id), zap.Stringer("center", req.Center), zap.Int("radius", req.Radius))
	w.moveObserver(ctx, c, req.Center, req.Radius)
}

func (w *World) handleObserverSubscribe(ctx context.Context, req ObserverSubscribeRequest) {
	c, ok := w.observers[req.SessionID]
	if !ok {
		return
	}
	w.moveObserver(ctx, c, req.Center, req.Radius)
}

func (w *World) handleObserverLeave(id string) {
	c, ok := w.observers[id]
	if !ok {
		return
	}
	delete(w.observers, id)
	w.nObs.Add(-1)
	close(c.out)
	w.log.Info("observer left", zap.String("session", id), zap.Uint64("dropped", c.dropped))
}

func (w *World) closeObservers() {
	for id, c := range w.observers {
		close(c.out)
		delete(w.observers, id)
	}
	w.nObs.Store(0)
}

// moveObserver lights the new area and sends every section in it that the
// observer did not already cover.
func (w *World) moveObserver(ctx context.Context, c *observerClient, center voxel.ChunkPos, radius int) {
	radius = w.clampRadius(radius)
	if err := w.ensureLit(ctx, center, radius); err != nil {
		w.log.Warn("lighting observer area failed", zap.String("session", c.id), zap.Error(err))
	}
	prev := *c
	c.center, c.radius, c.subscribed = center, radius, true

	tick := w.tick.Load()
	minY, maxY := w.lightSectionRange()
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			cp := voxel.ChunkPos{X: center.X + dx, Z: center.Z + dz}
			if prev.subscribed && prev.covers(cp.Section(0)) {
				continue
			}
			for y := minY; y <= maxY; y++ {
				for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
					p, ok := w.view(ch).SectionPayload(cp.Section(y))
					if !ok {
						continue
					}
					w.send(c, sectionUpdateMsg(tick, cp.Section(y), ch, p))
				}
			}
		}
	}
}

func (w *World) lightSectionRange() (int, int) {
	return w.chunks.MinSection() - 1, w.chunks.MaxSection() + 1
}

func (w *World) broadcast(updates []SectionUpdate) {
	if len(w.observers) == 0 {
		return
	}
	for _, u := range updates {
		var b []byte
		for _, c := range w.observers {
			if !c.covers(u.Pos) {
				continue
			}
			if b == nil {
				b = sectionUpdateMsg(u.Tick, u.Pos, u.Channel, u.Light)
			}
			w.send(c, b)
		}
	}
}

// send never blocks the loop; a slow observer loses messages.
func (w *World) send(c *observerClient, b []byte) {
	select {
	case c.out <- b:
	default:
		c.dropped++
	}
}

func sectionUpdateMsg(tick uint64, pos voxel.SectionPos, ch engine.Channel, p nibble.Persisted) []byte {
	msg := observerproto.SectionUpdateMsg{
		Type:            observerproto.TypeSectionUpdate,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Section:         [3]int{pos.X, pos.Y, pos.Z},
		Channel:         ch.String(),
		State:           p.State.String(),
	}
	if p.State == nibble.Initialized {
		msg.Encoding = observerproto.EncodingRLENibble
		msg.Data = p.EncodeText()
	}
	b, _ := json.Marshal(msg)
	return b
}
