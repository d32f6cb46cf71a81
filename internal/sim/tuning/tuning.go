package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID    string `yaml:"world_id"`
	Seed       int64  `yaml:"seed"`
	MinSection int    `yaml:"min_section"`
	MaxSection int    `yaml:"max_section"`
	BoundaryR  int    `yaml:"world_boundary_r"`
	// PreloadRadius is the chunk radius around the origin generated and lit
	// at startup.
	PreloadRadius int `yaml:"preload_radius"`

	Light       Light       `yaml:"light"`
	Gen         Gen         `yaml:"gen"`
	Persistence Persistence `yaml:"persistence"`
	Observer    Observer    `yaml:"observer"`
}

type Light struct {
	Block     bool `yaml:"block"`
	Sky       bool `yaml:"sky"`
	Workers   int  `yaml:"workers"`
	PoolLimit int  `yaml:"pool_limit"`
	// EdgeCheck lights chunks in any order and repairs seams afterwards.
	EdgeCheck bool `yaml:"edge_check"`
	// PropagateEveryMs is how often the serve loop drains pending changes.
	PropagateEveryMs int `yaml:"propagate_every_ms"`
}

type Gen struct {
	BaseHeight                  int `yaml:"base_height"`
	HeightVariation             int `yaml:"height_variation"`
	SeaLevel                    int `yaml:"sea_level"`
	BiomeRegionSize             int `yaml:"biome_region_size"`
	OreClusterProbScalePermille int `yaml:"ore_cluster_prob_scale_permille"`
	GlowPermille                int `yaml:"glow_permille"`
	TreePermille                int `yaml:"tree_permille"`
	SlabPermille                int `yaml:"slab_permille"`
	TorchPermille               int `yaml:"torch_permille"`
}

type Persistence struct {
	SnapshotPath string `yaml:"snapshot_path"`
	LightDBPath  string `yaml:"light_db_path"`
	LogDir       string `yaml:"log_dir"`
	// ArchiveKeep is how many replaced snapshots are kept under
	// <snapshot dir>/archives. Zero disables archiving.
	ArchiveKeep int `yaml:"archive_keep"`
}

type Observer struct {
	Addr string `yaml:"addr"`
	// MaxRadius caps the chunk radius a websocket client may subscribe to.
	MaxRadius int `yaml:"max_radius"`
}

// Load reads lumen.yaml. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("lumen.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("lumen.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		WorldID:       "OVERWORLD",
		Seed:          1337,
		MinSection:    -2,
		MaxSection:    7,
		BoundaryR:     4000,
		PreloadRadius: 4,
		Light: Light{
			Block:            true,
			Sky:              true,
			Workers:          4,
			PoolLimit:        64,
			EdgeCheck:        true,
			PropagateEveryMs: 50,
		},
		Gen: Gen{
			BaseHeight:                  40,
			HeightVariation:             24,
			SeaLevel:                    44,
			BiomeRegionSize:             64,
			OreClusterProbScalePermille: 1000,
			GlowPermille:                2,
			TreePermille:                12,
			SlabPermille:                20,
			TorchPermille:               3,
		},
		Persistence: Persistence{
			SnapshotPath: "data/snapshots/light.snap.zst",
			LightDBPath:  "data/index/light.sqlite",
			LogDir:       "data/logs",
			ArchiveKeep:  3,
		},
		Observer: Observer{
			Addr:      ":8081",
			MaxRadius: 8,
		},
	}
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.WorldID = strings.TrimSpace(t.WorldID)
	if t.Light.Workers <= 0 {
		t.Light.Workers = 1
	}
	if t.Light.PoolLimit <= 0 {
		t.Light.PoolLimit = 64
	}
	if t.Light.PropagateEveryMs <= 0 {
		t.Light.PropagateEveryMs = 50
	}
	if t.Gen.BiomeRegionSize <= 0 {
		t.Gen.BiomeRegionSize = 1
	}
	if t.Persistence.ArchiveKeep < 0 {
		t.Persistence.ArchiveKeep = 0
	}
	if t.PreloadRadius < 0 {
		t.PreloadRadius = 0
	}
	if t.Observer.MaxRadius <= 0 {
		t.Observer.MaxRadius = 1
	}
}

func (t Tuning) Validate() error {
	t.Normalize()
	if t.WorldID == "" {
		return fmt.Errorf("world_id must not be empty")
	}
	if t.MaxSection < t.MinSection {
		return fmt.Errorf("max_section %d below min_section %d", t.MaxSection, t.MinSection)
	}
	if n := t.MaxSection - t.MinSection + 3; n*16 > 1<<14 {
		return fmt.Errorf("world too tall: %d light sections", n)
	}
	if t.BoundaryR < 0 {
		return fmt.Errorf("world_boundary_r must be >= 0")
	}
	if !t.Light.Block && !t.Light.Sky {
		return fmt.Errorf("light: at least one of block and sky must be enabled")
	}
	bottom, top := t.MinSection*16, (t.MaxSection+1)*16-1
	if t.Gen.BaseHeight < bottom || t.Gen.BaseHeight+t.Gen.HeightVariation > top {
		return fmt.Errorf("gen: terrain %d..%d outside world %d..%d", t.Gen.BaseHeight, t.Gen.BaseHeight+t.Gen.HeightVariation, bottom, top)
	}
	if t.Gen.HeightVariation < 0 {
		return fmt.Errorf("gen: height_variation must be >= 0")
	}
	for name, v := range map[string]int{
		"glow_permille":  t.Gen.GlowPermille,
		"tree_permille":  t.Gen.TreePermille,
		"slab_permille":  t.Gen.SlabPermille,
		"torch_permille": t.Gen.TorchPermille,
	} {
		if v < 0 || v > 1000 {
			return fmt.Errorf("gen: %s must be in [0, 1000]", name)
		}
	}
	return nil
}
