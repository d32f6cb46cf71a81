package engine

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

// LightChunk computes the chunk's light from scratch. With edgeCheck the
// neighbourhood may be incomplete and the seams are verified afterwards;
// without it every neighbour must be loaded and ready, and the light of lit
// neighbours is pulled in.
func (c *core) LightChunk(pos voxel.ChunkPos, edgeCheck bool) error {
	return c.run(pos, edgeCheck, func() error {
		c.rules.prepareCenter()
		c.rules.seedSources()
		if edgeCheck {
			c.performIncrease()
			c.checkChunkEdges()
			c.performDecrease()
		} else {
			c.propagateNeighbourLevels()
			c.performIncrease()
		}
		return nil
	})
}

// RelightChunk discards the chunk's light, withdraws whatever it had pushed
// into neighbours and lights it again.
func (c *core) RelightChunk(pos voxel.ChunkPos) error {
	return c.run(pos, true, func() error {
		c.withdrawSeams()
		c.rules.prepareCenter()
		c.performDecrease()
		c.rules.seedSources()
		c.performIncrease()
		c.checkChunkEdges()
		c.performDecrease()
		return nil
	})
}

// CheckEdges repairs the seams of an already lit chunk.
func (c *core) CheckEdges(pos voxel.ChunkPos) error {
	return c.run(pos, true, func() error {
		c.checkChunkEdges()
		c.performDecrease()
		return nil
	})
}

// BlocksChanged re-evaluates the given voxels of one chunk. sectionsChanged
// reports that some section of the chunk gained its first or lost its last
// voxel.
func (c *core) BlocksChanged(pos voxel.ChunkPos, changed []voxel.Pos, sectionsChanged bool) error {
	return c.run(pos, true, func() error {
		if sectionsChanged {
			c.growRequirements()
		}
		c.rules.propagateChanges(changed)
		c.performDecrease()
		if sectionsChanged {
			c.shrinkRequirements()
		}
		return nil
	})
}

// centerChanges maps changed world positions to local coordinates, dropping
// those outside the center chunk.
func (c *core) centerChanges(changed []voxel.Pos, fn func(x, y, z int)) {
	center := centerSlot()
	for _, p := range changed {
		x, y, z, ok := c.local(p)
		if !ok || slotOf(x, z) != center {
			continue
		}
		fn(x, y, z)
	}
}
