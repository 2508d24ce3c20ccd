package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/supervisor"
	"github.com/fuelsh/fuel/pkg/models"
)

var (
	reasonFlag string
	commitFlag string
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Move an open task to in_progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Start(args[0])
		if err != nil {
			return err
		}
		reportTransition(t)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Close a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Done(args[0], reasonFlag, commitFlag)
		if err != nil {
			return err
		}
		reportTransition(t)
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Reopen(args[0], reasonFlag)
		if err != nil {
			return err
		}
		reportTransition(t)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Cancel(args[0], reasonFlag)
		if err != nil {
			return err
		}
		reportTransition(t)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Reset a failed-stuck task to open",
	Long: `Reset a failed-stuck task to open so the consume loop picks it up
again. A task is failed-stuck when its agent exited non-zero, or when
it is still marked in_progress but its agent process is gone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Retry(args[0], func(pid int) bool { return !supervisor.IsAlive(pid) }, nil)
		if err != nil {
			return err
		}
		reportTransition(t)
		return nil
	},
}

func reportTransition(t *models.Task) {
	fmt.Printf("%s %s is now %s\n", color.GreenString("✓"),
		color.CyanString(t.ID), statusColor(t.Status).Sprint(t.Status))
}

func init() {
	doneCmd.Flags().StringVar(&reasonFlag, "reason", "", "completion note")
	doneCmd.Flags().StringVar(&commitFlag, "commit", "", "commit hash delivering the work")
	reopenCmd.Flags().StringVar(&reasonFlag, "reason", "", "why the task is reopened")
	cancelCmd.Flags().StringVar(&reasonFlag, "reason", "", "why the task is cancelled")
}
