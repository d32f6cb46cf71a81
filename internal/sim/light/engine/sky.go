package engine

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

// SkyEngine propagates light coming straight down from above the world.
// Voxels with an unobstructed view of the sky hold 15; all other sky light
// spreads from those columns.
type SkyEngine struct {
	core
}

func NewSkyEngine(cfg Config) *SkyEngine {
	e := &SkyEngine{core: newCore(SkyLight, cfg)}
	e.rules = e
	return e
}

func (e *SkyEngine) emission(voxel.State) int { return 0 }

func (e *SkyEngine) checkBlock(x, y, z int) {
	cur := e.level(x, y, z)
	if cur < 0 {
		return
	}
	if cur == voxel.MaxLevel {
		// A column source survives; light it again in case the change
		// opened a new way out.
		e.increase.PushBack(newEntry(x, y, z, cur, voxel.AllFaces, flagRecheck|flagDirectional))
	} else {
		e.setLevel(x, y, z, 0)
	}
	e.decrease.PushBack(newEntry(x, y, z, cur, voxel.AllFaces, 0))
}

// skyAt reads sky light with the sections above the required range counting
// as open sky.
func (e *SkyEngine) skyAt(x, y, z int) int {
	if y >= e.height {
		return voxel.MaxLevel
	}
	s := e.storeAt(x, y, z)
	if s == nil {
		return 0
	}
	if s.IsNullUpdating() {
		return voxel.MaxLevel
	}
	return s.Get(voxel.Index(x&15, y&15, z&15))
}

// prepareCenter resets the center chunk: sections holding or below its own
// voxels start dark, those above start full.
func (e *SkyEngine) prepareCenter() {
	e.resetCenter()
	e.growRequirements()
	center := centerSlot()
	top := e.topSection(center)
	for j := 0; j < e.lightCount; j++ {
		s := e.slotStore(center, j)
		if s == nil || s.IsNullUpdating() {
			continue
		}
		if top >= 0 && j <= top+1 {
			s.SetZero(e.pool)
		} else {
			s.SetFull(e.pool)
		}
		e.touch(center*e.lightCount + j)
	}
}

// seedSources walks every column of the center chunk down from the top of
// its highest non-empty section and pushes full sections sideways.
func (e *SkyEngine) seedSources() {
	center := centerSlot()
	top := e.topSection(center)
	bx, bz := e.centerLocal()
	firstFull := 0
	if top >= 0 {
		// Light section top+1 holds the chunk's highest voxels.
		firstFull = top + 2
		startY := firstFull*voxel.SectionSize - 1
		for z := 0; z < voxel.SectionSize; z++ {
			for x := 0; x < voxel.SectionSize; x++ {
				e.walkColumn(bx+x, startY, bz+z)
			}
		}
	}
	for j := firstFull; j < e.lightCount; j++ {
		if s := e.slotStore(center, j); s == nil || !s.IsInitializedUpdating() {
			continue
		}
		for _, f := range voxel.HorizontalFaces {
			ns := e.slotStore(neighbourSlot(f), j)
			if ns == nil || ns.IsNullUpdating() {
				continue
			}
			into := voxel.FaceSetOf(f)
			e.seamVoxels(f, j, func(x, y, z, _, _, _ int) {
				e.increase.PushBack(newEntry(x, y, z, voxel.MaxLevel, into, 0))
			})
		}
	}
}

// walkColumn sets 15 on every voxel from startY down that the sky reaches
// through the voxel above, and queues each for sideways spread. It returns
// the y of the first voxel the sky did not reach.
func (e *SkyEngine) walkColumn(x, startY, z int) int {
	if e.skyAt(x, startY+1, z) != voxel.MaxLevel {
		return startY
	}
	above := e.state(x, startY+1, z)
	aboveDir := e.props.Directional(above)
	y := startY
	for ; y >= 0; y-- {
		s := e.storeAt(x, y, z)
		if s == nil {
			break
		}
		if s.IsNullUpdating() {
			y &^= voxel.SectionSize - 1
			above, aboveDir = voxel.Air, false
			continue
		}
		st, t := e.classify(x, y, z)
		if t == voxel.FullOpaque {
			break
		}
		var aboveFace voxel.FaceMask
		if aboveDir {
			aboveFace = e.props.FaceOcclusion(above, e.worldPos(x, y+1, z), voxel.Down)
		}
		dir := false
		if t == voxel.Special {
			dir = e.props.Directional(st)
			p := e.worldPos(x, y, z)
			ownFace := voxel.EmptyFace
			if dir {
				ownFace = e.props.FaceOcclusion(st, p, voxel.Up)
			}
			if voxel.Occludes(aboveFace, ownFace) || voxel.ResolveOpacity(e.props, st, p) > 0 {
				break
			}
		} else if aboveFace == voxel.FullFace {
			break
		}
		e.setLevel(x, y, z, voxel.MaxLevel)
		e.increase.PushBack(newEntry(x, y, z, voxel.MaxLevel, voxel.AllBut(voxel.Up), directionalFlag(dir)))
		above, aboveDir = st, dir
	}
	return y
}

// clearColumn takes 15s away from the voxel at y and the run of 15s below
// it, queueing each for decrease.
func (e *SkyEngine) clearColumn(x, y, z int) {
	if e.level(x, y, z) != voxel.MaxLevel {
		return
	}
	for ; y >= 0; y-- {
		s := e.storeAt(x, y, z)
		if s == nil {
			return
		}
		if s.IsNullUpdating() {
			y &^= voxel.SectionSize - 1
			continue
		}
		if s.Get(voxel.Index(x&15, y&15, z&15)) != voxel.MaxLevel {
			return
		}
		e.setLevel(x, y, z, 0)
		e.decrease.PushBack(newEntry(x, y, z, voxel.MaxLevel, voxel.AllFaces, 0))
	}
}

// propagateChanges re-walks every column that changed from its highest
// changed voxel, clears what the column no longer reaches, then checks each
// changed voxel.
func (e *SkyEngine) propagateChanges(changed []voxel.Pos) {
	var heights [voxel.SectionSize * voxel.SectionSize]int
	for i := range heights {
		heights[i] = -1
	}
	bx, bz := e.centerLocal()
	e.centerChanges(changed, func(x, y, z int) {
		i := (x - bx) | (z-bz)<<4
		heights[i] = max(heights[i], y)
	})
	for i, h := range heights {
		if h < 0 {
			continue
		}
		x, z := bx+i&15, bz+i>>4
		stop := e.walkColumn(x, h, z)
		if stop >= 0 {
			e.clearColumn(x, stop, z)
		}
	}
	e.centerChanges(changed, e.checkBlock)
}
