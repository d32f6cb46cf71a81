package voxel

import "sync/atomic"

// Transparency is the cached light class of a voxel, stored in 2 bits.
type Transparency uint8

const (
	Unknown Transparency = iota
	Transparent
	FullOpaque
	// Special voxels need the slow path: partial opacity, a dynamic opacity or
	// a directional occlusion shape.
	Special
)

func (t Transparency) String() string {
	switch t {
	case Transparent:
		return "transparent"
	case FullOpaque:
		return "full_opaque"
	case Special:
		return "special"
	default:
		return "unknown"
	}
}

// Classify computes the class of s from its properties.
func Classify(props Properties, s State) Transparency {
	if props.Directional(s) {
		return Special
	}
	switch props.Opacity(s) {
	case 0:
		return Transparent
	case MaxLevel:
		return FullOpaque
	default:
		return Special
	}
}

const transparencyWords = SectionVolume * 2 / 64

// TransparencyMap caches the class of every voxel of one section. Entries start
// Unknown and are filled lazily; Set is used by the host on voxel changes.
// All accesses are atomic so the light engine may fill entries while the host
// reads them.
type TransparencyMap struct {
	words [transparencyWords]atomic.Uint64
}

func (m *TransparencyMap) Get(index int) Transparency {
	w := m.words[index>>5].Load()
	return Transparency(w >> (uint(index&31) << 1) & 3)
}

func (m *TransparencyMap) Set(index int, t Transparency) {
	word := &m.words[index>>5]
	shift := uint(index&31) << 1
	for {
		old := word.Load()
		nw := old&^(3<<shift) | uint64(t&3)<<shift
		if old == nw || word.CompareAndSwap(old, nw) {
			return
		}
	}
}

// Lookup returns the cached class for index, classifying s on a miss.
func (m *TransparencyMap) Lookup(index int, s State, props Properties) Transparency {
	if t := m.Get(index); t != Unknown {
		return t
	}
	t := Classify(props, s)
	m.Set(index, t)
	return t
}

// Invalidate forgets every cached class, e.g. after a palette reload.
func (m *TransparencyMap) Invalidate() {
	for i := range m.words {
		m.words[i].Store(0)
	}
}
