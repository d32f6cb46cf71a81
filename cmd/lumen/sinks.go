package main

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/persistence/archive"
	"voxelcraft.ai/lumen/internal/persistence/lightdb"
	persistlog "voxelcraft.ai/lumen/internal/persistence/log"
	"voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/world"
)

// dbSink mirrors every published section into the light database.
type dbSink struct {
	db  *lightdb.DB
	log *zap.Logger
}

func (s dbSink) SectionsPublished(updates []world.SectionUpdate) {
	for _, u := range updates {
		if err := s.db.WriteSection(u.Pos, u.Channel, light.FormatVersion, u.Light); err != nil {
			s.log.Warn("light db write failed", zap.Stringer("section", u.Pos), zap.Stringer("channel", u.Channel), zap.Error(err))
			return
		}
	}
}

// updateLogSink appends one compressed JSONL entry per published section.
type updateLogSink struct {
	l   *persistlog.UpdateLogger
	log *zap.Logger
}

func (s updateLogSink) SectionsPublished(updates []world.SectionUpdate) {
	for _, u := range updates {
		err := s.l.WriteUpdate(persistlog.SectionUpdate{
			Section: [3]int{u.Pos.X, u.Pos.Y, u.Pos.Z},
			Channel: u.Channel.String(),
			State:   u.Light.State.String(),
			Lit:     litVoxels(u.Light),
		})
		if err != nil {
			s.log.Warn("update log write failed", zap.Error(err))
			return
		}
	}
}

func litVoxels(p nibble.Persisted) int {
	if p.State != nibble.Initialized {
		return 0
	}
	n := 0
	for i := 0; i < nibble.ArraySize*2; i++ {
		if p.Level(i) > 0 {
			n++
		}
	}
	return n
}

// writeSnapshot replaces path only once the new snapshot is fully written.
// The snapshot being replaced is archived first when keep > 0.
func writeSnapshot(path string, snap snapshot.SnapshotV1, keep int, log *zap.Logger) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := snapshot.WriteSnapshot(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if keep > 0 {
		meta, ok, err := archive.ArchiveSnapshot(filepath.Join(filepath.Dir(path), "archives"), path, keep)
		switch {
		case err != nil:
			log.Warn("snapshot archive failed", zap.Error(err))
		case ok:
			log.Debug("snapshot archived", zap.Int("generation", meta.Generation), zap.Uint64("tick", meta.Tick))
		}
	}
	return os.Rename(tmp, path)
}

func openSinks(cfg persistenceConfig, log *zap.Logger) (*lightdb.DB, *persistlog.UpdateLogger, []world.Option, error) {
	var opts []world.Option
	var db *lightdb.DB
	if cfg.LightDBPath != "" {
		if err := ensureParent(cfg.LightDBPath); err != nil {
			return nil, nil, nil, err
		}
		var err error
		db, err = lightdb.Open(cfg.LightDBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, world.WithSink(dbSink{db: db, log: log}))
	}
	var ul *persistlog.UpdateLogger
	if cfg.LogDir != "" {
		ul = persistlog.NewUpdateLogger(cfg.LogDir)
		opts = append(opts, world.WithSink(updateLogSink{l: ul, log: log}))
	}
	return db, ul, opts, nil
}

type persistenceConfig struct {
	LightDBPath string
	LogDir      string
}
