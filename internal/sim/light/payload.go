package light

import (
	"fmt"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// FormatVersion tags saved light. Light saved under another version is not
// trusted and the chunk is lit again.
const FormatVersion = 1

type SectionPayload struct {
	Y     int
	Light nibble.Persisted
}

// ChunkPayload is the saved light of one chunk. A channel that was disabled
// when saving has no sections.
type ChunkPayload struct {
	Version int
	Block   []SectionPayload
	Sky     []SectionPayload
}

// ChunkLightPayload captures the published light of a lit chunk.
func (s *System) ChunkLightPayload(pos voxel.ChunkPos) (ChunkPayload, error) {
	c := s.world.Chunk(pos.X, pos.Z)
	if c == nil {
		return ChunkPayload{}, fmt.Errorf("%w: %s", engine.ErrUnknownChunk, pos)
	}
	l := c.Light()
	if !l.Lit() {
		return ChunkPayload{}, fmt.Errorf("%w: %s", ErrNotLit, pos)
	}
	out := ChunkPayload{Version: FormatVersion}
	for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
		if !s.Enabled(ch) {
			continue
		}
		stores := l.Stores(ch)
		sections := make([]SectionPayload, len(stores))
		for i, st := range stores {
			sections[i] = SectionPayload{Y: l.MinLightSection() + i, Light: st.Save()}
		}
		if ch == engine.SkyLight {
			out.Sky = sections
		} else {
			out.Block = sections
		}
	}
	return out, nil
}

// InstallChunkLight restores saved light into a chunk that is not being lit.
// It returns false, leaving the chunk unlit, when the payload was written
// under another FormatVersion or lacks an enabled channel; a corrupt payload
// is an error and also leaves the chunk unlit.
func (s *System) InstallChunkLight(pos voxel.ChunkPos, p ChunkPayload) (bool, error) {
	c := s.world.Chunk(pos.X, pos.Z)
	if c == nil {
		return false, fmt.Errorf("%w: %s", engine.ErrUnknownChunk, pos)
	}
	log := s.log.With(zap.Stringer("chunk", pos))
	if p.Version != FormatVersion {
		log.Warn("discarding saved light", zap.Int("version", p.Version), zap.Int("want", FormatVersion))
		return false, nil
	}
	l := c.Light()

	type plan struct {
		stores   []*nibble.Store
		payloads []nibble.Persisted
	}
	var plans []plan
	for _, ch := range []engine.Channel{engine.BlockLight, engine.SkyLight} {
		if !s.Enabled(ch) {
			continue
		}
		sections := p.Block
		if ch == engine.SkyLight {
			sections = p.Sky
		}
		if len(sections) == 0 {
			log.Warn("saved light lacks a channel", zap.Stringer("channel", ch))
			return false, nil
		}
		stores := l.Stores(ch)
		payloads := make([]nibble.Persisted, len(stores))
		seen := make([]bool, len(stores))
		for _, sp := range sections {
			i := sp.Y - l.MinLightSection()
			if i < 0 || i >= len(stores) || seen[i] {
				return false, fmt.Errorf("%w: %s light section %d of %s", nibble.ErrBadPayload, ch, sp.Y, pos)
			}
			if err := validPersisted(sp.Light); err != nil {
				return false, fmt.Errorf("%s light section %d of %s: %w", ch, sp.Y, pos, err)
			}
			seen[i] = true
			payloads[i] = sp.Light
		}
		plans = append(plans, plan{stores: stores, payloads: payloads})
	}

	l.SetLit(false)
	for _, pl := range plans {
		for i, st := range pl.stores {
			if err := st.Restore(nil, pl.payloads[i]); err != nil {
				// Validated above.
				panic(err)
			}
		}
	}
	l.SetLit(true)
	return true, nil
}

func validPersisted(p nibble.Persisted) error {
	switch p.State {
	case nibble.Null, nibble.Uninitialized:
		if len(p.Data) != 0 {
			return fmt.Errorf("%w: %s store carries data", nibble.ErrBadPayload, p.State)
		}
	case nibble.Initialized:
		if len(p.Data) != nibble.ArraySize {
			return fmt.Errorf("%w: payload length %d", nibble.ErrBadPayload, len(p.Data))
		}
	default:
		return fmt.Errorf("%w: unknown state %d", nibble.ErrBadPayload, p.State)
	}
	return nil
}
