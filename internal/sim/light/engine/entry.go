package engine

import "voxelcraft.ai/lumen/internal/sim/light/voxel"

// entry is one packed work item of a flood-fill queue:
//
//	bits  0-27  window-local position (x | z<<7 | y<<14)
//	bits 28-31  light level
//	bits 32-37  faces still to check
//	bit  61     the voxel may have a directional occlusion shape
//	bit  62     skip the entry unless the live level still equals its level
//	bit  63     write the level before propagating
type entry uint64

const (
	posBits     = 28
	posMask     = 1<<posBits - 1
	levelShift  = 28
	facesShift  = 32
	localXZBits = 7
	localXZMask = 1<<localXZBits - 1
	localYShift = 2 * localXZBits
	maxLocalY   = 1 << (posBits - localYShift)

	flagDirectional entry = 1 << 61
	flagRecheck     entry = 1 << 62
	flagWrite       entry = 1 << 63
)

func packPos(x, y, z int) int {
	return x | z<<localXZBits | y<<localYShift
}

func unpackPos(p int) (x, y, z int) {
	return p & localXZMask, p >> localYShift, (p >> localXZBits) & localXZMask
}

func newEntry(x, y, z, level int, faces voxel.FaceSet, flags entry) entry {
	return entry(packPos(x, y, z)&posMask) |
		entry(level&15)<<levelShift |
		entry(faces&voxel.AllFaces)<<facesShift |
		flags
}

func (e entry) xyz() (x, y, z int) { return unpackPos(int(e & posMask)) }
func (e entry) level() int         { return int(e>>levelShift) & 15 }
func (e entry) faces() voxel.FaceSet {
	return voxel.FaceSet(e>>facesShift) & voxel.AllFaces
}
func (e entry) has(flag entry) bool { return e&flag != 0 }

func directionalFlag(directional bool) entry {
	if directional {
		return flagDirectional
	}
	return 0
}
