package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelcraft.ai/lumen/internal/persistence/lightdb"
	"voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/tuning"
	"voxelcraft.ai/lumen/internal/sim/world"
	"voxelcraft.ai/lumen/internal/transport/observer"
)

type serveOptions struct {
	*rootOptions
	Addr          string
	Snapshot      string
	Fresh         bool
	SnapshotEvery time.Duration
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the world loop and the observer API",
		Long: `Resume the world from its snapshot (or generate a fresh one), light the
preload area and serve HTTP and websocket observers until interrupted.

Example:
  lumen serve --addr 127.0.0.1:8081
  lumen serve --fresh --snapshot-every 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "http listen address (default: observer.addr)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot path (default: persistence.snapshot_path)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "ignore an existing snapshot")
	cmd.Flags().DurationVar(&opts.SnapshotEvery, "snapshot-every", 5*time.Minute, "periodic snapshot interval (0 disables)")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, cats, err := opts.load()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Observer.Addr = opts.Addr
	}
	snapPath := cfg.Persistence.SnapshotPath
	if opts.Snapshot != "" {
		snapPath = opts.Snapshot
	}
	log := opts.log.With(zap.String("world", cfg.WorldID))

	var snap *snapshot.SnapshotV1
	if !opts.Fresh && snapPath != "" {
		s, err := snapshot.ReadSnapshot(snapPath)
		switch {
		case err == nil:
			snap = &s
			// The snapshot decides the terrain, so the database must match it.
			cfg.Seed = s.Seed
			if s.Header.WorldID != "" {
				cfg.WorldID = s.Header.WorldID
			}
		case errors.Is(err, os.ErrNotExist):
			log.Info("no snapshot, starting fresh", zap.String("path", snapPath))
		default:
			return fmt.Errorf("read snapshot: %w", err)
		}
	}

	db, ul, worldOpts, err := openSinks(persistenceConfig{
		LightDBPath: cfg.Persistence.LightDBPath,
		LogDir:      cfg.Persistence.LogDir,
	}, log)
	if err != nil {
		return fmt.Errorf("open sinks: %w", err)
	}
	if ul != nil {
		defer ul.Close()
	}
	if db != nil {
		defer db.Close()
		if usable, err := dbMatches(ctx, db, cfg); err != nil {
			log.Warn("light db meta unreadable", zap.Error(err))
		} else if usable {
			worldOpts = append(worldOpts, world.WithLightSource(db))
		} else {
			log.Warn("light db belongs to another world, not restoring from it")
		}
	}
	worldOpts = append(worldOpts, world.WithLogger(log))

	w, err := newWorld(cfg, cats, snap, worldOpts)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Preload(ctx); err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	log.Info("world ready", zap.Int("lit_chunks", w.Status().LitChunks))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	observer.NewServer(w, log.Named("observer")).Routes(mux)
	srv := &http.Server{
		Addr:              cfg.Observer.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.Stop()
		return srv.Shutdown(shutdownCtx)
	})
	if opts.SnapshotEvery > 0 && snapPath != "" {
		g.Go(func() error {
			periodicSnapshots(gctx, w, snapPath, opts.SnapshotEvery, cfg.Persistence.ArchiveKeep, log)
			return nil
		})
	}
	runErr := g.Wait()

	// The loop has stopped; the world can be read directly.
	if snapPath != "" {
		if err := writeSnapshot(snapPath, w.ExportSnapshot(), cfg.Persistence.ArchiveKeep, log); err != nil {
			log.Error("final snapshot failed", zap.Error(err))
		} else {
			log.Info("final snapshot written", zap.String("path", snapPath), zap.Uint64("tick", w.CurrentTick()))
		}
	}
	if db != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Flush(flushCtx); err != nil {
			log.Error("light db flush failed", zap.Error(err))
		} else if err := writeDBMeta(flushCtx, db, cfg); err != nil {
			log.Error("light db meta failed", zap.Error(err))
		}
	}
	return runErr
}

func newWorld(cfg tuning.Tuning, cats *catalogs.Catalogs, snap *snapshot.SnapshotV1, opts []world.Option) (*world.World, error) {
	if snap == nil {
		return world.New(cfg, cats, opts...)
	}
	return world.NewFromSnapshot(cfg, cats, *snap, opts...)
}

// dbMatches reports whether the stored light was computed for this world.
// An empty database matches anything.
func dbMatches(ctx context.Context, db *lightdb.DB, cfg tuning.Tuning) (bool, error) {
	id, ok, err := db.Meta(ctx, "world_id")
	if err != nil || (ok && id != cfg.WorldID) {
		return false, err
	}
	seed, ok, err := db.Meta(ctx, "seed")
	if err != nil || !ok {
		return err == nil, err
	}
	return seed == strconv.FormatInt(cfg.Seed, 10), nil
}

func periodicSnapshots(ctx context.Context, w *world.World, path string, every time.Duration, keep int, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap, err := w.Snapshot(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, world.ErrStopped) {
					log.Warn("snapshot request failed", zap.Error(err))
				}
				return
			}
			if err := writeSnapshot(path, snap, keep, log); err != nil {
				log.Warn("snapshot write failed", zap.Error(err))
				continue
			}
			log.Debug("snapshot written", zap.Uint64("tick", w.CurrentTick()))
		}
	}
}
