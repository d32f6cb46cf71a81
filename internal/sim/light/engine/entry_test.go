package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

func TestEntry_Packing(t *testing.T) {
	e := newEntry(79, 415, 64, 13, voxel.AllBut(voxel.Up), flagRecheck|flagDirectional)
	x, y, z := e.xyz()
	assert.Equal(t, [3]int{79, 415, 64}, [3]int{x, y, z})
	assert.Equal(t, 13, e.level())
	assert.Equal(t, voxel.AllBut(voxel.Up), e.faces())
	assert.True(t, e.has(flagRecheck))
	assert.True(t, e.has(flagDirectional))
	assert.False(t, e.has(flagWrite))

	w := newEntry(0, 0, 0, 15, voxel.FaceSetOf(voxel.East), flagWrite)
	assert.Equal(t, 15, w.level())
	assert.Equal(t, voxel.FaceSetOf(voxel.East), w.faces())
	assert.True(t, w.has(flagWrite))
}

func TestEntry_PosRoundTrip(t *testing.T) {
	for _, p := range [][3]int{{0, 0, 0}, {127, 0, 127}, {5, maxLocalY - 1, 9}, {64, 31, 17}} {
		x, y, z := unpackPos(packPos(p[0], p[1], p[2]))
		assert.Equal(t, p, [3]int{x, y, z})
	}
}
