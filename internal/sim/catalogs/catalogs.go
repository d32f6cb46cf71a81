package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

//go:embed default_blocks.json
var defaultBlocks []byte

type Catalogs struct {
	Blocks BlockCatalog
}

// Shape is the occlusion shape of a block.
type Shape string

const (
	ShapeFull       Shape = "full"
	ShapeEmpty      Shape = "empty"
	ShapeBottomSlab Shape = "bottom_slab"
	ShapeTopSlab    Shape = "top_slab"
)

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	// Per palette id, filled by index().
	opacity  []int
	emission []int
	shape    []Shape
}

type BlockDef struct {
	ID       string `json:"id"`
	Opacity  int    `json:"opacity"`
	Emission int    `json:"emission,omitempty"`
	Shape    Shape  `json:"shape,omitempty"`
}

// Load reads blocks.json from configDir.
func Load(configDir string) (*Catalogs, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

// Default returns the catalog compiled into the binary.
func Default() *Catalogs {
	c, err := parse(defaultBlocks)
	if err != nil {
		panic(fmt.Sprintf("catalogs: embedded blocks.json: %v", err))
	}
	return c
}

func parse(raw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		if d.Shape == "" {
			d.Shape = ShapeFull
			if d.Opacity < voxel.MaxLevel {
				d.Shape = ShapeEmpty
			}
		}
		switch d.Shape {
		case ShapeFull, ShapeEmpty, ShapeBottomSlab, ShapeTopSlab:
		default:
			return fmt.Errorf("blocks.json: %s: unknown shape %q", d.ID, d.Shape)
		}
		if d.Opacity < 0 || d.Opacity > voxel.MaxLevel {
			return fmt.Errorf("blocks.json: %s: opacity %d out of range", d.ID, d.Opacity)
		}
		if d.Emission < 0 || d.Emission > voxel.MaxLevel {
			return fmt.Errorf("blocks.json: %s: emission %d out of range", d.ID, d.Emission)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	air, ok := out.Defs["AIR"]
	if !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	if air.Opacity != 0 || air.Emission != 0 || air.Shape != ShapeEmpty {
		return fmt.Errorf("blocks.json: AIR must be transparent and dark")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	out.index()
	return nil
}

func (c *BlockCatalog) index() {
	c.opacity = make([]int, len(c.Palette))
	c.emission = make([]int, len(c.Palette))
	c.shape = make([]Shape, len(c.Palette))
	for i, id := range c.Palette {
		d := c.Defs[id]
		c.opacity[i] = d.Opacity
		c.emission[i] = d.Emission
		c.shape[i] = d.Shape
	}
}

// MustID returns the palette id of a block that the caller knows exists.
func (c *BlockCatalog) MustID(name string) voxel.State {
	id, ok := c.Index[name]
	if !ok {
		panic("catalogs: unknown block " + name)
	}
	return voxel.State(id)
}

// Name returns the block id for a palette id, or "" when out of range.
func (c *BlockCatalog) Name(s voxel.State) string {
	if int(s) >= len(c.Palette) {
		return ""
	}
	return c.Palette[s]
}

// Opacity treats unknown palette ids as solid.
func (c *BlockCatalog) Opacity(s voxel.State) int {
	if int(s) >= len(c.opacity) {
		return voxel.MaxLevel
	}
	return c.opacity[s]
}

func (c *BlockCatalog) OpacityAt(s voxel.State, _ voxel.Pos) int {
	return c.Opacity(s)
}

func (c *BlockCatalog) Emission(s voxel.State) int {
	if int(s) >= len(c.emission) {
		return 0
	}
	return c.emission[s]
}

func (c *BlockCatalog) Directional(s voxel.State) bool {
	if int(s) >= len(c.shape) {
		return false
	}
	sh := c.shape[s]
	return sh == ShapeBottomSlab || sh == ShapeTopSlab
}

func (c *BlockCatalog) FaceOcclusion(s voxel.State, _ voxel.Pos, f voxel.Face) voxel.FaceMask {
	if int(s) >= len(c.shape) {
		return voxel.EmptyFace
	}
	switch c.shape[s] {
	case ShapeFull:
		return voxel.FullFace
	case ShapeBottomSlab:
		switch f {
		case voxel.Down:
			return voxel.FullFace
		case voxel.Up:
			return voxel.EmptyFace
		default:
			return voxel.LowerHalfFace
		}
	case ShapeTopSlab:
		switch f {
		case voxel.Up:
			return voxel.FullFace
		case voxel.Down:
			return voxel.EmptyFace
		default:
			return voxel.UpperHalfFace
		}
	default:
		return voxel.EmptyFace
	}
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
