package engine

import (
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// seamVoxels calls fn for the 256 voxel pairs of light section j across the
// center chunk's face f: (x,y,z) inside the center, (nx,ny,nz) in the
// neighbour.
func (c *core) seamVoxels(f voxel.Face, j int, fn func(x, y, z, nx, ny, nz int)) {
	bx, bz := c.centerLocal()
	d := f.Offset()
	for v := 0; v < voxel.SectionSize; v++ {
		y := j*voxel.SectionSize + v
		for u := 0; u < voxel.SectionSize; u++ {
			var x, z int
			switch f {
			case voxel.West:
				x, z = bx, bz+u
			case voxel.East:
				x, z = bx+voxel.SectionSize-1, bz+u
			case voxel.North:
				x, z = bx+u, bz
			default:
				x, z = bx+u, bz+voxel.SectionSize-1
			}
			fn(x, y, z, x+d[0], y, z+d[2])
		}
	}
}

// propagateNeighbourLevels queues the light of every lit neighbour's seam
// voxels toward the center chunk.
func (c *core) propagateNeighbourLevels() {
	center := centerSlot()
	for _, f := range voxel.HorizontalFaces {
		slot := neighbourSlot(f)
		if c.chunks[slot] == nil || !c.lit[slot] {
			continue
		}
		into := voxel.FaceSetOf(f.Opposite())
		for j := 0; j < c.lightCount; j++ {
			ns, cs := c.slotStore(slot, j), c.slotStore(center, j)
			if ns == nil || cs == nil || ns.IsNullUpdating() || cs.IsNullUpdating() {
				continue
			}
			c.seamVoxels(f, j, func(_, _, _, nx, ny, nz int) {
				if lvl := c.level(nx, ny, nz); lvl > 1 {
					c.increase.PushBack(newEntry(nx, ny, nz, lvl, into, flagRecheck|flagDirectional))
				}
			})
		}
	}
}

// checkChunkEdges compares light across the center chunk's four seams and
// re-checks both sides of every pair that breaks the attenuation bound. The
// checks run after the scan so a repair cannot disturb pairs not yet read.
// The caller drains the queues.
func (c *core) checkChunkEdges() {
	center := centerSlot()
	var suspects []int
	seen := make(map[int]struct{})
	mark := func(x, y, z int) {
		p := packPos(x, y, z)
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			suspects = append(suspects, p)
		}
	}
	for _, f := range voxel.HorizontalFaces {
		slot := neighbourSlot(f)
		if c.chunks[slot] == nil || !c.lit[slot] {
			continue
		}
		for j := 0; j < c.lightCount; j++ {
			ns, cs := c.slotStore(slot, j), c.slotStore(center, j)
			if ns == nil || cs == nil || ns.IsNullUpdating() || cs.IsNullUpdating() {
				continue
			}
			if !ns.IsInitializedUpdating() && !cs.IsInitializedUpdating() {
				continue
			}
			c.seamVoxels(f, j, func(x, y, z, nx, ny, nz int) {
				a, b := c.level(x, y, z), c.level(nx, ny, nz)
				if !c.consistent(x, y, z, a, f, nx, ny, nz, b) {
					mark(x, y, z)
					mark(nx, ny, nz)
				}
			})
		}
	}
	if len(suspects) == 0 {
		return
	}
	c.stats.EdgeRepairs += uint64(len(suspects))
	c.log.Debug("repairing chunk edges",
		zap.Stringer("chunk", c.center),
		zap.Int("voxels", len(suspects)))
	for _, p := range suspects {
		x, y, z := unpackPos(p)
		c.rules.checkBlock(x, y, z)
	}
}

// consistent reports whether two adjacent levels obey the attenuation bound
// in both directions. A step of one is trusted only when a side is plain air
// or solid; between partial blockers it may hide a stale level.
func (c *core) consistent(x, y, z, a int, f voxel.Face, nx, ny, nz, b int) bool {
	if a-b == 1 || b-a == 1 {
		_, ta := c.classify(x, y, z)
		_, tb := c.classify(nx, ny, nz)
		return confirmed(ta) || confirmed(tb)
	}
	if a-b >= 2 {
		if atten, _, open := c.passage(x, y, z, true, f, nx, ny, nz); open && b < a-atten {
			return false
		}
	}
	if b-a >= 2 {
		if atten, _, open := c.passage(nx, ny, nz, true, f.Opposite(), x, y, z); open && a < b-atten {
			return false
		}
	}
	return true
}

func confirmed(t voxel.Transparency) bool {
	return t == voxel.Transparent || t == voxel.FullOpaque
}

// withdrawSeams queues a decrease across every seam from the center chunk's
// current light, so that light it pushed into neighbours can be taken back
// once the center is reset.
func (c *core) withdrawSeams() {
	center := centerSlot()
	for _, f := range voxel.HorizontalFaces {
		slot := neighbourSlot(f)
		if c.chunks[slot] == nil {
			continue
		}
		out := voxel.FaceSetOf(f)
		for j := 0; j < c.lightCount; j++ {
			ns, cs := c.slotStore(slot, j), c.slotStore(center, j)
			if ns == nil || cs == nil || ns.IsNullUpdating() || cs.IsNullUpdating() {
				continue
			}
			c.seamVoxels(f, j, func(x, y, z, _, _, _ int) {
				if lvl := c.level(x, y, z); lvl > 0 {
					c.decrease.PushBack(newEntry(x, y, z, lvl, out, 0))
				}
			})
		}
	}
}
