package engine

// A light section is required (non-Null) when light can be non-trivial there:
//
//	block: some section of the 3x3x3 section neighbourhood holds voxels
//	sky:   it lies at most one section above the highest non-empty section
//	       of the 3x3 chunk neighbourhood
//
// Sky sections above that line read as 15.

// innerSlot reports whether slot lies in the populated 3x3 of the window.
func innerSlot(sx, sz int) bool {
	return sx >= windowRadius-1 && sx <= windowRadius+1 && sz >= windowRadius-1 && sz <= windowRadius+1
}

func (c *core) nonEmpty(slot, b int) bool {
	sec := c.sections[slot*c.blockCount+b]
	return sec != nil && !sec.IsEmpty()
}

// topSection is the highest non-empty block section index of a window slot,
// -1 when the chunk is empty or absent.
func (c *core) topSection(slot int) int {
	if c.chunks[slot] == nil {
		return -1
	}
	for b := c.blockCount - 1; b >= 0; b-- {
		if c.nonEmpty(slot, b) {
			return b
		}
	}
	return -1
}

// initSection makes a Null light section usable. It starts dark, except sky
// sections of lit chunks: those lie above everything the chunk holds and are
// fully lit.
func (c *core) initSection(slot, j int) {
	s := c.slotStore(slot, j)
	if s == nil || !s.IsNullUpdating() {
		return
	}
	if c.channel == SkyLight && c.lit[slot] {
		s.SetFull(c.pool)
	} else {
		s.SetUninitialized(c.pool)
	}
	c.touch(slot*c.lightCount + j)
}

// growRequirements initialises every Null section of the loaded 3x3 that the
// window's voxels now require. It runs before any propagation.
func (c *core) growRequirements() {
	for slot := 0; slot < windowChunks; slot++ {
		if c.chunks[slot] == nil {
			continue
		}
		sx, sz := slot%windowSize, slot/windowSize
		for b := 0; b < c.blockCount; b++ {
			if !c.nonEmpty(slot, b) {
				continue
			}
			lo, hi := b, min(b+2, c.lightCount-1)
			if c.channel == SkyLight {
				lo = 0
			}
			for dz := -1; dz <= 1; dz++ {
				for dx := -1; dx <= 1; dx++ {
					tx, tz := sx+dx, sz+dz
					if !innerSlot(tx, tz) {
						continue
					}
					target := tx + tz*windowSize
					if c.chunks[target] == nil {
						continue
					}
					for j := lo; j <= hi; j++ {
						c.initSection(target, j)
					}
				}
			}
		}
	}
}

// shrinkRequirements returns sections that are no longer required to Null.
// Only trivially valued sections are dropped: all zero for block light, all
// 15 for sky light. It runs after propagation.
func (c *core) shrinkRequirements() {
	for slot := 0; slot < windowChunks; slot++ {
		if c.chunks[slot] == nil {
			continue
		}
		pos := c.sectionPos(slot, 0).Chunk()
		for j := 0; j < c.lightCount; j++ {
			s := c.slotStore(slot, j)
			if s == nil || s.IsNullUpdating() || c.required(pos.X, pos.Z, j) {
				continue
			}
			trivial := s.IsAllZero()
			if c.channel == SkyLight {
				trivial = s.IsAllFull()
			}
			if !trivial {
				continue
			}
			s.SetNull(c.pool)
			c.touch(slot*c.lightCount + j)
		}
	}
}

// required evaluates the requirement of light section j of chunk (cx,cz)
// against the host, since the neighbourhood may reach outside the window.
func (c *core) required(cx, cz, j int) bool {
	lo, hi := j-2, j
	if c.channel == SkyLight {
		lo, hi = j-2, c.blockCount-1
	}
	lo, hi = max(lo, 0), min(hi, c.blockCount-1)
	if lo > hi {
		return false
	}
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			ch := c.world.Chunk(cx+dx, cz+dz)
			if ch == nil {
				continue
			}
			for b := lo; b <= hi; b++ {
				if sec := ch.Section(c.minSection + b); sec != nil && !sec.IsEmpty() {
					return true
				}
			}
		}
	}
	return false
}

// resetCenter drops all light of the center chunk.
func (c *core) resetCenter() {
	center := centerSlot()
	for j := 0; j < c.lightCount; j++ {
		if s := c.slotStore(center, j); s != nil && !s.IsNullUpdating() {
			s.SetNull(c.pool)
			c.touch(center*c.lightCount + j)
		}
	}
}
