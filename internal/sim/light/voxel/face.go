package voxel

// Face is one of the six axis directions a voxel face points at.
type Face uint8

const (
	Down Face = iota
	Up
	North // -z
	South // +z
	West  // -x
	East  // +x
)

// Faces lists every face in bit order.
var Faces = [6]Face{Down, Up, North, South, West, East}

// HorizontalFaces are the faces that cross chunk seams.
var HorizontalFaces = [4]Face{North, South, West, East}

var faceOffsets = [6][3]int{
	Down:  {0, -1, 0},
	Up:    {0, 1, 0},
	North: {0, 0, -1},
	South: {0, 0, 1},
	West:  {-1, 0, 0},
	East:  {1, 0, 0},
}

var faceNames = [6]string{"down", "up", "north", "south", "west", "east"}

func (f Face) Opposite() Face {
	return f ^ 1
}

func (f Face) Offset() [3]int {
	return faceOffsets[f]
}

func (f Face) String() string {
	if int(f) < len(faceNames) {
		return faceNames[f]
	}
	return "invalid"
}

// FaceSet is a bitset of faces, bit i set for Face(i).
type FaceSet uint8

const AllFaces FaceSet = 1<<6 - 1

func FaceSetOf(faces ...Face) FaceSet {
	var s FaceSet
	for _, f := range faces {
		s |= 1 << f
	}
	return s
}

func (s FaceSet) Has(f Face) bool {
	return s&(1<<f) != 0
}

func (s FaceSet) Without(f Face) FaceSet {
	return s &^ (1 << f)
}

// AllBut is every face except f.
func AllBut(f Face) FaceSet {
	return AllFaces.Without(f)
}
