package engine

import (
	"cmp"
	"math/rand"
	"slices"
	"testing"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

const (
	stone voxel.State = iota + 1
	glow
	torch
	water
	glass
	slab
	leaves
)

type testProps struct{}

func (testProps) Opacity(s voxel.State) int {
	switch s {
	case stone, glow:
		return 15
	case water:
		return 2
	case leaves:
		return voxel.OpacityDynamic
	default:
		return 0
	}
}

func (testProps) OpacityAt(s voxel.State, p voxel.Pos) int {
	if s == leaves {
		return 1 + voxel.Mod(p.X+p.Z, 2)
	}
	return testProps{}.Opacity(s)
}

func (testProps) Emission(s voxel.State) int {
	switch s {
	case glow:
		return 15
	case torch:
		return 14
	default:
		return 0
	}
}

func (testProps) Directional(s voxel.State) bool { return s == slab }

// Slabs fill the lower half of their voxel.
func (testProps) FaceOcclusion(s voxel.State, _ voxel.Pos, f voxel.Face) voxel.FaceMask {
	if s != slab {
		return voxel.EmptyFace
	}
	switch f {
	case voxel.Down:
		return voxel.FullFace
	case voxel.Up:
		return voxel.EmptyFace
	default:
		return voxel.LowerHalfFace
	}
}

type testSection struct {
	states [voxel.SectionVolume]voxel.State
	count  int
	tm     voxel.TransparencyMap
}

func (s *testSection) At(i int) voxel.State                 { return s.states[i] }
func (s *testSection) IsEmpty() bool                        { return s.count == 0 }
func (s *testSection) Transparency() *voxel.TransparencyMap { return &s.tm }

type testChunk struct {
	sections []*testSection
	light    *ChunkLight
	min      int
	notReady bool
}

func (c *testChunk) Section(y int) Section {
	i := y - c.min
	if i < 0 || i >= len(c.sections) || c.sections[i] == nil {
		return nil
	}
	return c.sections[i]
}

func (c *testChunk) Light() *ChunkLight { return c.light }
func (c *testChunk) Ready() bool        { return !c.notReady }

type testWorld struct {
	min, max int
	chunks   map[voxel.ChunkPos]*testChunk
}

func newTestWorld(minSection, maxSection int) *testWorld {
	return &testWorld{min: minSection, max: maxSection, chunks: make(map[voxel.ChunkPos]*testChunk)}
}

func (w *testWorld) Chunk(x, z int) Chunk {
	c, ok := w.chunks[voxel.ChunkPos{X: x, Z: z}]
	if !ok {
		return nil
	}
	return c
}

func (w *testWorld) MinSection() int { return w.min }
func (w *testWorld) MaxSection() int { return w.max }

func (w *testWorld) load(x, z int) *testChunk {
	c := &testChunk{
		sections: make([]*testSection, w.max-w.min+1),
		light:    NewChunkLight(w.min, w.max),
		min:      w.min,
	}
	w.chunks[voxel.ChunkPos{X: x, Z: z}] = c
	return c
}

func (w *testWorld) loadArea(radius int) {
	for z := -radius; z <= radius; z++ {
		for x := -radius; x <= radius; x++ {
			w.load(x, z)
		}
	}
}

func (w *testWorld) get(p voxel.Pos) voxel.State {
	c := w.chunks[p.Chunk()]
	if c == nil {
		return voxel.Air
	}
	sec := c.Section(p.Section().Y)
	if sec == nil {
		return voxel.Air
	}
	return sec.At(p.Index())
}

// set changes one voxel and reports whether its section became empty or
// non-empty.
func (w *testWorld) set(p voxel.Pos, s voxel.State) bool {
	c := w.chunks[p.Chunk()]
	i := p.Section().Y - w.min
	if c == nil || i < 0 || i >= len(c.sections) {
		return false
	}
	sec := c.sections[i]
	if sec == nil {
		sec = &testSection{}
		c.sections[i] = sec
	}
	wasEmpty := sec.count == 0
	idx := p.Index()
	old := sec.states[idx]
	if old == s {
		return false
	}
	sec.states[idx] = s
	switch {
	case old == voxel.Air:
		sec.count++
	case s == voxel.Air:
		sec.count--
	}
	sec.tm.Set(idx, voxel.Unknown)
	return wasEmpty != (sec.count == 0)
}

// level reads published light the way a renderer would.
func (w *testWorld) level(ch Channel, p voxel.Pos) int {
	c := w.chunks[p.Chunk()]
	if c == nil {
		return 0
	}
	sy := p.Section().Y
	s := c.light.Store(ch, sy)
	if s == nil || s.IsNullVisible() {
		if ch == SkyLight && sy >= c.light.MinLightSection() {
			return voxel.MaxLevel
		}
		return 0
	}
	return s.GetVisible(p.Index())
}

func (w *testWorld) lightY() (lo, hi int) {
	return (w.min - 1) * voxel.SectionSize, (w.max+2)*voxel.SectionSize - 1
}

type engines struct {
	block *BlockEngine
	sky   *SkyEngine
}

func newEngines(w *testWorld, l Listener) engines {
	cfg := Config{World: w, Props: testProps{}, Listener: l}
	return engines{block: NewBlockEngine(cfg), sky: NewSkyEngine(cfg)}
}

func (e engines) lightChunk(t *testing.T, w *testWorld, pos voxel.ChunkPos, edgeCheck bool) {
	t.Helper()
	if err := e.block.LightChunk(pos, edgeCheck); err != nil {
		t.Fatalf("block LightChunk %s: %v", pos, err)
	}
	if err := e.sky.LightChunk(pos, edgeCheck); err != nil {
		t.Fatalf("sky LightChunk %s: %v", pos, err)
	}
	w.chunks[pos].light.SetLit(true)
}

func (e engines) lightAll(t *testing.T, w *testWorld, r *rand.Rand) {
	t.Helper()
	order := make([]voxel.ChunkPos, 0, len(w.chunks))
	for pos := range w.chunks {
		order = append(order, pos)
	}
	slices.SortFunc(order, func(a, b voxel.ChunkPos) int {
		return cmp.Or(cmp.Compare(a.Z, b.Z), cmp.Compare(a.X, b.X))
	})
	if r != nil {
		r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	for _, pos := range order {
		e.lightChunk(t, w, pos, true)
	}
}

func (e engines) change(t *testing.T, w *testWorld, p voxel.Pos, s voxel.State) {
	t.Helper()
	sectionChanged := w.set(p, s)
	if err := e.block.BlocksChanged(p.Chunk(), []voxel.Pos{p}, sectionChanged); err != nil {
		t.Fatalf("block BlocksChanged: %v", err)
	}
	if err := e.sky.BlocksChanged(p.Chunk(), []voxel.Pos{p}, sectionChanged); err != nil {
		t.Fatalf("sky BlocksChanged: %v", err)
	}
}

// Reference model: light must equal the brightest of the voxel's own source
// and every neighbour's level minus the cost of entering the voxel.

func opaque(s voxel.State, p voxel.Pos) bool {
	return voxel.ResolveOpacity(testProps{}, s, p) >= voxel.MaxLevel
}

func faceOf(s voxel.State, p voxel.Pos, f voxel.Face) voxel.FaceMask {
	if !(testProps{}).Directional(s) {
		return voxel.EmptyFace
	}
	return testProps{}.FaceOcclusion(s, p, f)
}

// enterCost is the attenuation of light moving from n through face f into p,
// or -1 when the way is closed.
func (w *testWorld) enterCost(n voxel.Pos, f voxel.Face, p voxel.Pos) int {
	s := w.get(p)
	if opaque(s, p) {
		return -1
	}
	if voxel.Occludes(faceOf(w.get(n), n, f), faceOf(s, p, f.Opposite())) {
		return -1
	}
	return max(1, voxel.ResolveOpacity(testProps{}, s, p))
}

// skyFloor is the lowest y of the column at (x,z) that sees the sky straight
// up.
func (w *testWorld) skyFloor(x, z int) int {
	lo, hi := w.lightY()
	above := voxel.Air
	for y := hi; y >= lo; y-- {
		q := voxel.Pos{X: x, Y: y, Z: z}
		s := w.get(q)
		if voxel.ResolveOpacity(testProps{}, s, q) > 0 {
			return y + 1
		}
		if voxel.Occludes(faceOf(above, voxel.Pos{X: x, Y: y + 1, Z: z}, voxel.Down), faceOf(s, q, voxel.Up)) {
			return y + 1
		}
		above = s
	}
	return lo
}

func (w *testWorld) expected(ch Channel, p voxel.Pos, skyFloor int) int {
	s := w.get(p)
	want := 0
	if ch == BlockLight {
		want = testProps{}.Emission(s)
	} else if p.Y >= skyFloor {
		return voxel.MaxLevel
	}
	lo, hi := w.lightY()
	for _, f := range voxel.Faces {
		n := p.Offset(f)
		if n.Y < lo || n.Y > hi || w.chunks[n.Chunk()] == nil {
			continue
		}
		cost := w.enterCost(n, f.Opposite(), p)
		if cost < 0 {
			continue
		}
		want = max(want, w.level(ch, n)-cost)
	}
	return want
}

// assertFixpoint checks every voxel of the given chunks against the model.
func assertFixpoint(t *testing.T, w *testWorld, chunks []voxel.ChunkPos) {
	t.Helper()
	lo, hi := w.lightY()
	for _, cp := range chunks {
		for _, ch := range []Channel{BlockLight, SkyLight} {
			bad := 0
			for z := 0; z < voxel.SectionSize; z++ {
				for x := 0; x < voxel.SectionSize; x++ {
					wx, wz := cp.X*voxel.SectionSize+x, cp.Z*voxel.SectionSize+z
					floor := w.skyFloor(wx, wz)
					for y := lo; y <= hi; y++ {
						p := voxel.Pos{X: wx, Y: y, Z: wz}
						got, want := w.level(ch, p), w.expected(ch, p, floor)
						if got != want {
							if bad < 5 {
								t.Errorf("%s light at %s = %d, want %d (state %d)", ch, p, got, want, w.get(p))
							}
							bad++
						}
					}
				}
			}
			if bad > 0 {
				t.Fatalf("%s light: %d voxels of chunk %s off", ch, bad, cp)
			}
		}
	}
}

func innerChunks() []voxel.ChunkPos {
	var out []voxel.ChunkPos
	for z := -1; z <= 1; z++ {
		for x := -1; x <= 1; x++ {
			out = append(out, voxel.ChunkPos{X: x, Z: z})
		}
	}
	return out
}

var randomStates = []voxel.State{stone, stone, stone, torch, glow, water, glass, slab, leaves, voxel.Air}

// buildRandomWorld fills a 5x5 chunk area with uneven ground and scattered
// features.
func buildRandomWorld(seed int64) *testWorld {
	w := newTestWorld(0, 3)
	w.loadArea(2)
	r := rand.New(rand.NewSource(seed))
	for x := -32; x < 48; x++ {
		for z := -32; z < 48; z++ {
			h := 6 + r.Intn(6)
			for y := 0; y < h; y++ {
				w.set(voxel.Pos{X: x, Y: y, Z: z}, stone)
			}
			if r.Intn(30) == 0 {
				w.set(voxel.Pos{X: x, Y: h, Z: z}, water)
			}
		}
	}
	for i := 0; i < 160; i++ {
		p := voxel.Pos{X: -32 + r.Intn(80), Y: 12 + r.Intn(36), Z: -32 + r.Intn(80)}
		s := randomStates[r.Intn(len(randomStates)-1)]
		if s == stone {
			// Small roofs make shadows with open sides.
			for dx := 0; dx < 4; dx++ {
				for dz := 0; dz < 4; dz++ {
					w.set(voxel.Pos{X: p.X + dx, Y: p.Y, Z: p.Z + dz}, stone)
				}
			}
			continue
		}
		w.set(p, s)
	}
	return w
}
