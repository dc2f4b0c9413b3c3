// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package main plays scripted viewing sessions through player monitors and
// sends their beacons to a collector.
//
//	./collector &
//	./simulate --players 20 --length 45s --collector http://localhost:8080
//
// Monitor options come from the same koanf layers as the collector (the
// monitor section of config.yaml and VIEWBEACON_MONITOR_* variables); the
// flags override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/monitor"
	"github.com/tomtom215/viewbeacon/internal/persist"
	"github.com/tomtom215/viewbeacon/internal/simulate"
)

type flags struct {
	configPath string
	collector  string
	envKey     string
	players    int
	length     time.Duration
	stagger    time.Duration
	seed       uint64
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "simulate",
		Short:         "Play scripted viewing sessions and send their beacons",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, f); err != nil {
				logging.Error().Err(err).Msg("Simulation failed")
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "config file (default: search config.yaml)")
	fl.StringVar(&f.collector, "collector", "", "collector host or URL, overrides monitor.beacon_collection_domain")
	fl.StringVar(&f.envKey, "env-key", "", "environment key reported by every player")
	fl.IntVarP(&f.players, "players", "n", 5, "number of concurrent players")
	fl.DurationVarP(&f.length, "length", "l", 30*time.Second, fmt.Sprintf("session length (min %s)", simulate.MinLength))
	fl.DurationVar(&f.stagger, "stagger", 500*time.Millisecond, "delay between player starts")
	fl.Uint64Var(&f.seed, "seed", uint64(time.Now().UnixNano()), "seed for script timings")
	return cmd
}

func run(ctx context.Context, f *flags) error {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	opts := cfg.Monitor
	if f.collector != "" {
		opts.BeaconCollectionDomain = f.collector
	}
	if opts.Data == nil {
		opts.Data = map[string]any{}
	}
	if f.envKey != "" {
		opts.Data["env_key"] = f.envKey
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if f.players <= 0 {
		return errors.New("--players must be positive")
	}

	c := clock.New()
	deps := monitor.Deps{Clock: c}
	if opts.StoragePath != "" {
		store, err := persist.OpenBadgerStore(opts.StoragePath)
		if err != nil {
			return fmt.Errorf("open identity store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Warn().Err(err).Msg("Error closing identity store")
			}
		}()
		deps.Store = store
	}
	mg := monitor.NewManager(deps)
	defer mg.DestroyAll(true)

	logging.Info().
		Int("players", f.players).
		Dur("length", f.length).
		Uint64("seed", f.seed).
		Str("collector", opts.BeaconCollectionDomain).
		Msg("Starting simulation")

	log := logging.WithComponent("simulate")
	g, gctx := errgroup.WithContext(ctx)
	for i := range f.players {
		s := simulate.NewSession(fmt.Sprintf("player-%d", i+1), c, f.length, f.seed+uint64(i))
		g.Go(func() error {
			if err := simulate.Sleep(gctx, time.Duration(i)*f.stagger); err != nil {
				return err
			}
			// Each session's options are its own; Data is shared otherwise.
			sessionOpts := opts
			sessionOpts.Data = make(map[string]any, len(opts.Data)+1)
			for k, v := range opts.Data {
				sessionOpts.Data[k] = v
			}
			sessionOpts.Data["video_title"] = fmt.Sprintf("Simulated video %d", i+1)
			return s.Run(gctx, mg, sessionOpts, simulate.Sleep, log)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Simulation interrupted")
		return nil
	}
	if err == nil {
		logging.Info().Int("players", f.players).Msg("Simulation finished")
	}
	return err
}
