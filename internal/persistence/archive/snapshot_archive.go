package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"voxelcraft.ai/lumen/internal/persistence/snapshot"
)

type Meta struct {
	Generation   int    `json:"generation"`
	WorldID      string `json:"world_id"`
	Tick         uint64 `json:"tick"`
	LightVersion int    `json:"light_version"`
	Chunks       int    `json:"chunks"`
	Snapshot     string `json:"snapshot"`
	CreatedAt    string `json:"created_at"`
}

const genPrefix = "gen_"

// ArchiveSnapshot copies the snapshot at snapshotPath into
// `archiveDir/gen_<NNNNNN>/` before it is replaced, then removes all but the
// newest keep generations. archived is false when there is no snapshot yet.
func ArchiveSnapshot(archiveDir, snapshotPath string, keep int) (meta Meta, archived bool, err error) {
	h, err := snapshot.ReadHeader(snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("archive: %w", err)
	}

	gens, err := generations(archiveDir)
	if err != nil {
		return Meta{}, false, err
	}
	next := 1
	if len(gens) > 0 {
		next = gens[len(gens)-1] + 1
	}
	dir := filepath.Join(archiveDir, fmt.Sprintf("%s%06d", genPrefix, next))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Meta{}, false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return Meta{}, false, err
	}

	meta = Meta{
		Generation:   next,
		WorldID:      h.WorldID,
		Tick:         h.Tick,
		LightVersion: h.LightVersion,
		Chunks:       h.Chunks,
		Snapshot:     filepath.Base(dst),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}

	if keep > 0 {
		gens = append(gens, next)
		for len(gens) > keep {
			if err := os.RemoveAll(filepath.Join(archiveDir, fmt.Sprintf("%s%06d", genPrefix, gens[0]))); err != nil {
				return meta, true, err
			}
			gens = gens[1:]
		}
	}
	return meta, true, nil
}

// generations lists the archived generation numbers in ascending order.
func generations(archiveDir string) ([]int, error) {
	ents, err := os.ReadDir(archiveDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), genPrefix))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
