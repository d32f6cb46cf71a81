package engine

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

// BlockEngine propagates light emitted by voxels. One engine serves one
// worker at a time.
type BlockEngine struct {
	core
}

func NewBlockEngine(cfg Config) *BlockEngine {
	e := &BlockEngine{core: newCore(BlockLight, cfg)}
	e.rules = e
	return e
}

func (e *BlockEngine) emission(s voxel.State) int {
	return min(max(e.props.Emission(s), 0), voxel.MaxLevel)
}

func (e *BlockEngine) checkBlock(x, y, z int) {
	cur := e.level(x, y, z)
	if cur < 0 {
		return
	}
	emitted := e.emission(e.state(x, y, z))
	e.setLevel(x, y, z, emitted)
	if emitted > 0 {
		e.increase.PushBack(newEntry(x, y, z, emitted, voxel.AllFaces, flagDirectional))
	}
	e.decrease.PushBack(newEntry(x, y, z, cur, voxel.AllFaces, 0))
}

func (e *BlockEngine) prepareCenter() {
	e.resetCenter()
	e.growRequirements()
}

func (e *BlockEngine) seedSources() {
	center := centerSlot()
	bx, bz := e.centerLocal()
	for b := 0; b < e.blockCount; b++ {
		if !e.nonEmpty(center, b) {
			continue
		}
		sec := e.sections[center*e.blockCount+b]
		by := (b + 1) * voxel.SectionSize
		for i := 0; i < voxel.SectionVolume; i++ {
			lvl := e.emission(sec.At(i))
			if lvl <= 0 {
				continue
			}
			x, y, z := voxel.Unindex(i)
			e.increase.PushBack(newEntry(bx+x, by+y, bz+z, lvl, voxel.AllFaces, flagWrite|flagDirectional))
		}
	}
}

func (e *BlockEngine) propagateChanges(changed []voxel.Pos) {
	e.centerChanges(changed, e.checkBlock)
}
