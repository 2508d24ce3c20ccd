package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/epic"
	"github.com/fuelsh/fuel/internal/health"
	"github.com/fuelsh/fuel/internal/ipc"
	"github.com/fuelsh/fuel/internal/prompttmpl"
	"github.com/fuelsh/fuel/internal/scheduler"
	"github.com/fuelsh/fuel/internal/supervisor"
	"github.com/fuelsh/fuel/internal/task"
)

var consumeFlags struct {
	tick    time.Duration
	verbose bool
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the consume loop",
	Long: `Run the consume loop: spawn the configured agent for every ready
task, track attempts, and serve observers on the consume port.

A first Ctrl-C drains gracefully (agents get 30 seconds to finish); a
second one force-kills the remaining agents and exits 130.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadConfig()
		if err != nil {
			return err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if consumeFlags.verbose {
			level = slog.LevelDebug
		}
		log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))

		tasks := task.NewRepo(dir)
		epics := epic.NewRepo(dir, tasks)
		runs, cleanup, err := openRuns(dir)
		if err != nil {
			return err
		}
		defer cleanup()

		tracker := health.NewTracker()
		sup := supervisor.New(cfg, tracker, supervisor.NewExecStarter(), dir, log)
		server := ipc.NewServer(cfg.ConsumeBind, cfg.ConsumePort, log)
		prompts, err := prompttmpl.New(dir)
		if err != nil {
			return err
		}

		sched := scheduler.New(cfg, tasks, epics, runs, tracker, sup, server, prompts, dir,
			scheduler.Options{Cwd: cwd, TickInterval: consumeFlags.tick}, log)

		// First signal cancels the loop; a second one forces the kill.
		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()
		force := make(chan struct{}, 1)
		sigs := make(chan os.Signal, 2)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigs
			log.Info("shutdown requested")
			stop()
			<-sigs
			force <- struct{}{}
		}()

		err = sched.Run(ctx, force)
		if errors.Is(err, scheduler.ErrForcedShutdown) {
			log.Warn("forced shutdown")
			os.Exit(130)
		}
		return err
	},
}

func init() {
	consumeCmd.Flags().DurationVar(&consumeFlags.tick, "tick", scheduler.DefaultTickInterval, "loop tick interval")
	consumeCmd.Flags().BoolVarP(&consumeFlags.verbose, "verbose", "v", false, "debug logging")
}
