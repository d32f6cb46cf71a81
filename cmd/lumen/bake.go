package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/persistence/lightdb"
	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/tuning"
	"voxelcraft.ai/lumen/internal/sim/world"
)

type bakeOptions struct {
	*rootOptions
	Radius   int
	Snapshot string
	NoDB     bool
}

func newBakeCommand(root *rootOptions) *cobra.Command {
	opts := &bakeOptions{rootOptions: root, Radius: -1}
	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Generate and light the preload area, then save it",
		Long: `Generate the chunks around the origin, light them and write the result
to a snapshot and to the light database.

Example:
  lumen bake --radius 6
  lumen bake --snapshot /tmp/light.snap.zst --no-db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runBake(ctx, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Radius, "radius", -1, "chunk radius to bake (default: preload_radius)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot output path (default: persistence.snapshot_path)")
	cmd.Flags().BoolVar(&opts.NoDB, "no-db", false, "skip writing the light database")
	return cmd
}

func runBake(ctx context.Context, opts *bakeOptions) error {
	cfg, cats, err := opts.load()
	if err != nil {
		return err
	}
	if opts.Radius >= 0 {
		cfg.PreloadRadius = opts.Radius
	}
	snapPath := cfg.Persistence.SnapshotPath
	if opts.Snapshot != "" {
		snapPath = opts.Snapshot
	}
	log := opts.log.With(zap.String("world", cfg.WorldID))

	pc := persistenceConfig{LightDBPath: cfg.Persistence.LightDBPath}
	if opts.NoDB {
		pc.LightDBPath = ""
	}
	db, _, sinkOpts, err := openSinks(pc, log)
	if err != nil {
		return fmt.Errorf("open light db: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	w, err := world.New(cfg, cats, append(sinkOpts, world.WithLogger(log))...)
	if err != nil {
		return err
	}
	defer w.Close()

	start := time.Now()
	if err := w.Preload(ctx); err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	published := w.FlushUpdates()
	st := w.Status()
	log.Info("baked",
		zap.Int("radius", cfg.PreloadRadius),
		zap.Int("chunks", st.LitChunks),
		zap.Int("sections_published", published),
		zap.Duration("took", time.Since(start)))

	if db != nil {
		if err := db.Flush(ctx); err != nil {
			return fmt.Errorf("flush light db: %w", err)
		}
		if err := writeDBMeta(ctx, db, cfg); err != nil {
			return err
		}
		dst := db.Stats()
		log.Info("light db written", zap.Uint64("rows", dst.Written), zap.Uint64("commits", dst.Commits), zap.Uint64("failed", dst.Failed))
	}

	if err := writeSnapshot(snapPath, w.ExportSnapshot(), cfg.Persistence.ArchiveKeep, log); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	log.Info("snapshot written", zap.String("path", snapPath))
	return nil
}

func writeDBMeta(ctx context.Context, db *lightdb.DB, cfg tuning.Tuning) error {
	for k, v := range map[string]string{
		"world_id":       cfg.WorldID,
		"seed":           strconv.FormatInt(cfg.Seed, 10),
		"format_version": strconv.Itoa(light.FormatVersion),
	} {
		if err := db.SetMeta(ctx, k, v); err != nil {
			return fmt.Errorf("light db meta %s: %w", k, err)
		}
	}
	return nil
}
