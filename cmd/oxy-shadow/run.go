package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-shadow/engine"
	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/Carmen-Shannon/oxy-shadow/internal/config"
	"github.com/Carmen-Shannon/oxy-shadow/internal/report"
	"github.com/spf13/cobra"
)

const defaultFrames = 60

type runOptions struct {
	*rootOptions
	scene    string
	settings string
	backend  string
	frames   int
	workers  int
	tickRate float64
	paced    bool
	profile  bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	o := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run --scene <path/to/scene.yaml>",
		Short: "Run a scene for a number of frames and print the per frame lighting stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return o.run(ctx, cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.scene, "scene", "s", "", "YAML scene description")
	f.StringVar(&o.settings, "settings", "", "shadow settings properties file, overrides the scene's")
	f.StringVar(&o.backend, "backend", "", "renderer backend: headless or wgpu, overrides the scene's")
	f.IntVarP(&o.frames, "frames", "n", 0, "frames to run, overrides the scene's")
	f.IntVar(&o.workers, "workers", 2, "visibility and light workers")
	f.Float64Var(&o.tickRate, "tick-rate", 0, "ticks per second, overrides the scene's")
	f.BoolVar(&o.paced, "paced", false, "wait for each tick instead of running frames back to back")
	f.BoolVar(&o.profile, "profile", false, "log profiler section timings")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}

func (o *runOptions) run(ctx context.Context, cmd *cobra.Command) error {
	desc, err := config.Load(o.scene)
	if err != nil {
		return err
	}

	prof := profiler.NewProfiler(profiler.WithLogger(o.log))
	sc, err := desc.Build(config.BuildOptions{
		Logger:   o.log,
		Profiler: prof,
		Settings: o.settings,
		Backend:  o.backend,
		Workers:  o.workers,
	})
	if err != nil {
		return fmt.Errorf("failed to build scene %s: %w", o.scene, err)
	}
	defer sc.Release()

	frames := o.frames
	if frames <= 0 {
		frames = desc.Frames
	}
	if frames <= 0 {
		frames = defaultFrames
	}
	rate := o.tickRate
	if rate <= 0 {
		rate = desc.TickRate
	}

	eng := engine.NewEngine(
		engine.WithLogger(o.log),
		engine.WithProfiler(prof),
		engine.WithProfiling(o.profile),
		engine.WithTickRate(rate),
		engine.WithPacing(o.paced),
		engine.WithFrameBudget(frames),
		engine.WithScene(0, sc),
	)

	var out []report.Frame
	eng.SetFrameCallback(func(key int, stats scene.FrameStats) {
		out = append(out, report.Frame{Scene: sc.Name(), Stats: stats})
	})

	runErr := eng.Run(ctx)
	report.Frames(cmd.OutOrStdout(), out)
	return runErr
}
