// Command lumen generates, lights and serves a voxel world.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/sim/catalogs"
	"voxelcraft.ai/lumen/internal/sim/tuning"
)

type rootOptions struct {
	ConfigPath string
	ConfigDir  string
	Verbose    bool

	log *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lumen",
		Short:         "Voxel light engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts.Verbose)
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./configs/lumen.yaml", "path to lumen.yaml (empty for defaults)")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "configs", "./configs", "directory holding blocks.json")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newBakeCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// load reads the tuning file and the block catalog. A missing blocks.json
// falls back to the compiled-in catalog.
func (o *rootOptions) load() (tuning.Tuning, *catalogs.Catalogs, error) {
	cfg, err := tuning.Load(strings.TrimSpace(o.ConfigPath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, nil, err
		}
		o.log.Warn("config not found, using defaults", zap.String("path", o.ConfigPath))
		cfg, _ = tuning.Load("")
	}
	cats, err := catalogs.Load(o.ConfigDir)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		o.log.Info("blocks.json not found, using built-in catalog", zap.String("dir", o.ConfigDir))
		cats = catalogs.Default()
	default:
		return cfg, nil, fmt.Errorf("load catalogs: %w", err)
	}
	return cfg, cats, nil
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
