package light

import (
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// LightLevel reads the published light of one voxel. Unloaded and unlit
// chunks and disabled channels read 0; sky sections that are not stored read
// as open sky.
func (s *System) LightLevel(p voxel.Pos, ch engine.Channel) int {
	if !s.Enabled(ch) {
		return 0
	}
	cp := p.Chunk()
	c := s.world.Chunk(cp.X, cp.Z)
	if c == nil {
		return 0
	}
	l := c.Light()
	if !l.Lit() {
		return 0
	}
	sy := voxel.FloorDiv(p.Y, voxel.SectionSize)
	st := l.Store(ch, sy)
	if st == nil {
		if ch == engine.SkyLight && sy > l.MaxLightSection() {
			return voxel.MaxLevel
		}
		return 0
	}
	if st.IsNullVisible() {
		if ch == engine.SkyLight {
			return voxel.MaxLevel
		}
		return 0
	}
	return st.GetVisible(p.Index())
}

// View is a read-only window onto one channel.
type View struct {
	sys *System
	ch  engine.Channel
}

func (s *System) BlockView() View { return View{sys: s, ch: engine.BlockLight} }
func (s *System) SkyView() View   { return View{sys: s, ch: engine.SkyLight} }

func (v View) Channel() engine.Channel { return v.ch }

func (v View) LightLevel(p voxel.Pos) int { return v.sys.LightLevel(p, v.ch) }

// SectionPayload returns the published payload of one section. ok is false
// for unloaded chunks, sections outside the light range and disabled
// channels.
func (v View) SectionPayload(sec voxel.SectionPos) (p nibble.Persisted, ok bool) {
	if !v.sys.Enabled(v.ch) {
		return nibble.Persisted{}, false
	}
	c := v.sys.world.Chunk(sec.X, sec.Z)
	if c == nil {
		return nibble.Persisted{}, false
	}
	st := c.Light().Store(v.ch, sec.Y)
	if st == nil {
		return nibble.Persisted{}, false
	}
	return st.Save(), true
}
