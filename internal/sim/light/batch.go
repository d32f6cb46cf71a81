package light

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

// LightChunks lights many chunks in parallel. Chunks are split into nine
// phases by (x mod 3, z mod 3); the neighbourhoods of two chunks in the same
// phase never overlap, so each phase runs on the worker pool without
// coordination. Every chunk is lit with edge checking, which makes the result
// independent of the order. Failed chunks stay unlit and are reported
// together.
func (s *System) LightChunks(ctx context.Context, positions []voxel.ChunkPos) error {
	var phases [9][]voxel.ChunkPos
	for _, pos := range positions {
		i := voxel.Mod(pos.X, 3) + 3*voxel.Mod(pos.Z, 3)
		phases[i] = append(phases[i], pos)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	for i, phase := range phases {
		if len(phase) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		slices.SortFunc(phase, compareChunks)

		var wg sync.WaitGroup
		for _, pos := range phase {
			wg.Add(1)
			s.workers.Submit(func() {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				if err := s.ComputeInitialLight(pos, true); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("chunk %s: %w", pos, err))
					mu.Unlock()
				}
			})
		}
		wg.Wait()
		s.log.Debug("light phase done", zap.Int("phase", i), zap.Int("chunks", len(phase)))
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
