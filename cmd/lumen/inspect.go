package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voxelcraft.ai/lumen/internal/observerproto"
	"voxelcraft.ai/lumen/internal/persistence/snapshot"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	"voxelcraft.ai/lumen/internal/sim/world"
)

type inspectOptions struct {
	*rootOptions
	Snapshot string
	At       []int
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	opts := &inspectOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a snapshot's header, or the light at one voxel",
		Long: `Print the header of a saved snapshot as JSON. With --at, restore the
world from the snapshot and print the light of one voxel instead.

Example:
  lumen inspect
  lumen inspect --at 8,60,8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot path (default: persistence.snapshot_path)")
	cmd.Flags().IntSliceVar(&opts.At, "at", nil, "voxel position x,y,z")
	return cmd
}

func runInspect(cmd *cobra.Command, opts *inspectOptions) error {
	cfg, cats, err := opts.load()
	if err != nil {
		return err
	}
	path := cfg.Persistence.SnapshotPath
	if opts.Snapshot != "" {
		path = opts.Snapshot
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if len(opts.At) == 0 {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		return enc.Encode(h)
	}
	if len(opts.At) != 3 {
		return fmt.Errorf("--at wants x,y,z, got %v", opts.At)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	w, err := world.NewFromSnapshot(cfg, cats, snap, world.WithLogger(opts.log))
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	defer func() {
		w.Stop()
		<-w.Done()
	}()

	p := voxel.Pos{X: opts.At[0], Y: opts.At[1], Z: opts.At[2]}
	s, err := w.LightAt(ctx, p)
	if err != nil {
		return err
	}
	return enc.Encode(observerproto.LightResponse{
		Pos:   [3]int{p.X, p.Y, p.Z},
		Lit:   s.Lit,
		Block: s.Block,
		Sky:   s.Sky,
		Voxel: s.Voxel,
	})
}
