package voxel

// State is a palette id understood by the host world. Air is always 0.
type State uint16

const Air State = 0

const (
	MaxLevel = 15

	// OpacityDynamic means the attenuation depends on the position and must be
	// resolved through Properties.OpacityAt.
	OpacityDynamic = -1
)

// Properties is what the light engine needs to know about voxel states.
type Properties interface {
	// Opacity is the attenuation applied to light entering a voxel of state s,
	// 0..15, or OpacityDynamic.
	Opacity(s State) int
	OpacityAt(s State, p Pos) int
	Emission(s State) int
	// Directional reports whether s occludes light differently per face.
	Directional(s State) bool
	FaceOcclusion(s State, p Pos, f Face) FaceMask
}

// FaceMask is an 8x8 coverage bitmap of one voxel face, row major from the
// lower edge of the face.
type FaceMask uint64

const (
	EmptyFace FaceMask = 0
	FullFace  FaceMask = ^FaceMask(0)

	// LowerHalfFace covers the bottom four rows of a side face.
	LowerHalfFace FaceMask = 0x00000000FFFFFFFF
	UpperHalfFace FaceMask = 0xFFFFFFFF00000000
)

// Occludes reports whether two touching faces together close the opening.
func Occludes(a, b FaceMask) bool {
	return a|b == FullFace
}

// ResolveOpacity returns the attenuation of s at p.
func ResolveOpacity(props Properties, s State, p Pos) int {
	o := props.Opacity(s)
	if o == OpacityDynamic {
		o = props.OpacityAt(s, p)
	}
	if o < 0 {
		return 0
	}
	if o > MaxLevel {
		return MaxLevel
	}
	return o
}
