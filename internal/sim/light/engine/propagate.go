package engine

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

// passage computes how light crosses from the voxel at (x,y,z) through face f
// into (nx,ny,nz). It returns the attenuation applied on entry, whether the
// neighbour has a directional shape, and false when the way is closed.
// srcDirectional asks for the source's own face shape to be honoured.
func (c *core) passage(x, y, z int, srcDirectional bool, f voxel.Face, nx, ny, nz int) (atten int, dir bool, open bool) {
	srcFace := voxel.EmptyFace
	if srcDirectional {
		st := c.state(x, y, z)
		if c.props.Directional(st) {
			srcFace = c.props.FaceOcclusion(st, c.worldPos(x, y, z), f)
		}
	}

	st, t := c.classify(nx, ny, nz)
	switch t {
	case voxel.Transparent:
		if srcFace == voxel.FullFace {
			return 0, false, false
		}
		return 1, false, true
	case voxel.FullOpaque:
		return 0, false, false
	}

	np := c.worldPos(nx, ny, nz)
	dir = c.props.Directional(st)
	dstFace := voxel.EmptyFace
	if dir {
		dstFace = c.props.FaceOcclusion(st, np, f.Opposite())
	}
	if voxel.Occludes(srcFace, dstFace) {
		return 0, dir, false
	}
	opacity := voxel.ResolveOpacity(c.props, st, np)
	if opacity >= voxel.MaxLevel {
		return 0, dir, false
	}
	return max(1, opacity), dir, true
}

func (c *core) step(x, y, z int, f voxel.Face) (int, int, int) {
	d := f.Offset()
	return x + d[0], y + d[1], z + d[2]
}

// performIncrease drains the increase queue. Every neighbour darker than
// level-attenuation is raised and queued in turn.
func (c *core) performIncrease() {
	for c.increase.Len() > 0 {
		e := c.increase.PopFront()
		c.stats.IncreaseEntries++
		x, y, z := e.xyz()
		level := e.level()
		switch {
		case e.has(flagRecheck):
			if c.level(x, y, z) != level {
				continue
			}
		case e.has(flagWrite):
			c.setLevel(x, y, z, level)
		}
		faces := e.faces()
		srcDir := e.has(flagDirectional)
		for _, f := range voxel.Faces {
			if !faces.Has(f) {
				continue
			}
			nx, ny, nz := c.step(x, y, z, f)
			cur := c.level(nx, ny, nz)
			if cur < 0 || cur >= level-1 {
				continue
			}
			atten, dir, open := c.passage(x, y, z, srcDir, f, nx, ny, nz)
			if !open {
				continue
			}
			target := level - atten
			if target <= cur {
				continue
			}
			c.setLevel(nx, ny, nz, target)
			if target > 1 {
				c.increase.PushBack(newEntry(nx, ny, nz, target, voxel.AllBut(f.Opposite()), directionalFlag(dir)))
			}
		}
	}
}

// performDecrease drains the decrease queue, then runs the increase queue to
// refill what was cleared. A decrease entry carries the level its voxel had
// before it went dark; neighbours brighter than that level allows are lit by
// something else and are re-queued for increase instead.
func (c *core) performDecrease() {
	for c.decrease.Len() > 0 {
		e := c.decrease.PopFront()
		c.stats.DecreaseEntries++
		x, y, z := e.xyz()
		level := e.level()
		faces := e.faces()
		for _, f := range voxel.Faces {
			if !faces.Has(f) {
				continue
			}
			nx, ny, nz := c.step(x, y, z, f)
			cur := c.level(nx, ny, nz)
			if cur <= 0 {
				continue
			}
			// The source may have just changed shape, so only the neighbour's
			// side of the face is trusted here.
			atten, dir, open := c.passage(x, y, z, false, f, nx, ny, nz)
			if !open {
				// Nothing we cleared fed this voxel, but an opaque emitter
				// must relight the space it now faces.
				st := c.state(nx, ny, nz)
				opacity := voxel.ResolveOpacity(c.props, st, c.worldPos(nx, ny, nz))
				if cur > max(0, level-max(1, opacity)) {
					c.increase.PushBack(newEntry(nx, ny, nz, cur, voxel.AllFaces, flagRecheck|directionalFlag(c.props.Directional(st))))
				}
				continue
			}
			target := max(0, level-atten)
			if cur > target {
				c.increase.PushBack(newEntry(nx, ny, nz, cur, voxel.AllFaces, flagRecheck|directionalFlag(dir)))
				continue
			}
			emitted := c.rules.emission(c.state(nx, ny, nz))
			c.setLevel(nx, ny, nz, emitted)
			if emitted > 0 {
				c.increase.PushBack(newEntry(nx, ny, nz, emitted, voxel.AllFaces, flagRecheck|directionalFlag(dir)))
			}
			c.decrease.PushBack(newEntry(nx, ny, nz, cur, voxel.AllBut(f.Opposite()), 0))
		}
	}
	c.performIncrease()
}
