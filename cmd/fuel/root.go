package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/config"
	"github.com/fuelsh/fuel/internal/epic"
	"github.com/fuelsh/fuel/internal/state"
	"github.com/fuelsh/fuel/internal/task"
)

// StateDirName is the per-project state directory.
const StateDirName = ".fuel"

var stateDirFlag string

var rootCmd = &cobra.Command{
	Use:   "fuel",
	Short: "Local agent orchestrator",
	Long: `Fuel runs coding agents against a local task backlog.

Tasks live in ` + StateDirName + `/tasks.jsonl next to your code; the consume
loop picks ready tasks, spawns the configured agent per task, tracks
every attempt, and backs off agents that keep failing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits with the mapped status code:
// 0 success, 1 validation or internal error, 2 not found.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, epic.ErrNotFound),
		errors.Is(err, state.ErrRunNotFound):
		return 2
	default:
		return 1
	}
}

// stateDir resolves the state directory: the --dir flag, or
// <cwd>/.fuel, walking up to find an existing one.
func stateDir() (string, error) {
	if stateDirFlag != "" {
		return stateDirFlag, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(cwd, StateDirName), nil
}

func openTaskRepo() (*task.Repo, string, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, "", err
	}
	return task.NewRepo(dir), dir, nil
}

func openEpicRepo() (*epic.Repo, *task.Repo, string, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, nil, "", err
	}
	tasks := task.NewRepo(dir)
	return epic.NewRepo(dir, tasks), tasks, dir, nil
}

func openRuns(dir string) (*state.Runs, func(), error) {
	db, err := state.Open(state.DBPath(dir))
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return state.NewRuns(db), func() { db.Close() }, nil
}

func loadConfig() (*config.Config, string, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "dir", "", "state directory (default: nearest "+StateDirName+")")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(epicCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
