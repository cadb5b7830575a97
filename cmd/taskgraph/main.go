package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"taskgraph/internal/job"
	"taskgraph/internal/sched"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses flags, then simulates the configured number of frames.
func run(ctx context.Context, outW io.Writer, args []string) error {
	fs := flag.NewFlagSet("taskgraph", flag.ContinueOnError)
	fs.SetOutput(outW)
	configPath := fs.String("config", "taskgraph.yml", "path to the YAML config")
	frames := fs.Int("frames", 0, "frames to simulate (overrides config)")
	csvPath := fs.String("csv", "", "write scheduler events to this CSV file (overrides config)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := sched.Load(*configPath)
	if err != nil {
		return err
	}
	if *frames > 0 {
		cfg.Frames = *frames
	}
	if *csvPath != "" {
		cfg.EventsCSV = *csvPath
	}
	level := cfg.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(outW, &slog.HandlerOptions{Level: level}))
	logger.Info("loaded config", "workers", cfg.Workers, "frames", cfg.Frames, "frame_ms", cfg.FrameMS, "islands", cfg.Islands)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errCb := sched.LogErrorCallback{Logger: logger}
	dispatcher := sched.NewDefaultCpuDispatcher(ctx, sched.DispatcherOptions{
		Workers:       cfg.Workers,
		ErrorCallback: errCb,
		Logger:        logger,
	})
	defer dispatcher.Close()

	events := &sched.MemoryRecorder{}
	var recorder sched.EventRecorder = events
	if cfg.EventsCSV != "" {
		csvRec, err := sched.NewCSVRecorder(cfg.EventsCSV)
		if err != nil {
			return err
		}
		defer csvRec.Close()
		recorder = teeRecorder{events, csvRec}
	}

	tm := sched.New(errCb, dispatcher, sched.WithLogger(logger), sched.WithRecorder(recorder))

	clock := sched.NewTickClock(1)
	clock.Start(ctx, time.Duration(cfg.FrameMS)*time.Millisecond)
	defer clock.Stop()

	for frame := 0; frame < cfg.Frames; frame++ {
		if _, ok := <-clock.Ch; !ok {
			return ctx.Err()
		}
		if err := simulateFrame(ctx, tm, cfg, frame, logger); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}

	logger.Info("simulation finished",
		"frames", cfg.Frames,
		"ticks", clock.Count(),
		"dispatched", events.Count(sched.StatusDispatch),
		"double_dispatches", events.Count(sched.StatusDoubleDispatch),
	)
	return nil
}

func simulateFrame(ctx context.Context, tm *sched.TaskManager, cfg sched.Config, frame int, logger *slog.Logger) error {
	start := time.Now()
	if err := tm.ResetDependencies(); err != nil {
		return err
	}
	if err := buildFrame(tm, cfg.Islands); err != nil {
		return err
	}

	tm.StartSimulation()
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := tm.WaitIdle(waitCtx); err != nil {
		return fmt.Errorf("waiting for %d pending tasks: %w", tm.PendingTasks(), err)
	}
	tm.StopSimulation()

	logger.Info("frame done", "frame", frame, "elapsed", time.Since(start))
	return nil
}

// buildFrame submits one frame of a rigid-body step:
//
//	broadphase -> narrowphase -> {contacts, joints} -> solver -> integrate
//
// contacts fans out one light task per island, each continuing into solver.
// integrate is referenced by name before it is submitted.
func buildFrame(tm *sched.TaskManager, islands int) error {
	integrateID := tm.GetNamedTask("integrate")

	submit := func(name string, work func(context.Context) error) (*sched.Task, error) {
		t := sched.NewTask(name, work)
		_, err := tm.SubmitNamedTask(t, name, sched.KindCPU)
		return t, err
	}

	broad, err := submit("broadphase", job.SpinWork(20_000, nil))
	if err != nil {
		return err
	}
	narrow, err := submit("narrowphase", job.SpinWork(20_000, nil))
	if err != nil {
		return err
	}
	solver, err := submit("solver", job.SpinWork(50_000, nil))
	if err != nil {
		return err
	}
	contacts, err := submit("contacts", func(ctx context.Context) error {
		for i := 0; i < islands; i++ {
			lt := sched.NewLightTask(fmt.Sprintf("island-%d", i), job.SpinWork(10_000, nil))
			lt.SetContinuation(tm, solver)
			lt.RemoveReference()
		}
		return nil
	})
	if err != nil {
		return err
	}
	joints, err := submit("joints", job.SleepWork(1))
	if err != nil {
		return err
	}
	integrate, err := submit("integrate", job.SpinWork(20_000, nil))
	if err != nil {
		return err
	}
	if integrate.ID() != integrateID {
		return fmt.Errorf("integrate resolved to %d, placeholder was %d", integrate.ID(), integrateID)
	}

	for _, dep := range []struct {
		task  *sched.Task
		after *sched.Task
	}{
		{narrow, broad},
		{contacts, narrow},
		{joints, narrow},
		{solver, contacts},
		{solver, joints},
	} {
		if err := dep.task.StartAfter(dep.after.ID()); err != nil {
			return err
		}
	}
	return solver.FinishBefore(integrateID)
}

// teeRecorder forwards every event to each recorder.
type teeRecorder []sched.EventRecorder

func (t teeRecorder) Record(ev sched.StatusEvent) {
	for _, r := range t {
		r.Record(ev)
	}
}
