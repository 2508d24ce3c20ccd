package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/pkg/models"
)

var runsFlags struct {
	limit  int
	output bool
}

var runsCmd = &cobra.Command{
	Use:   "runs <id>",
	Short: "Show the attempt history for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, dir, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.Find(args[0])
		if err != nil {
			return err
		}

		runs, cleanup, err := openRuns(dir)
		if err != nil {
			return err
		}
		defer cleanup()

		history, err := runs.ListRuns(t.ID, runsFlags.limit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Printf("No runs for %s yet.\n", t.ID)
			return nil
		}

		for _, r := range history {
			fmt.Printf("%s %s %s started %s\n",
				color.CyanString(r.ID),
				runStatusColor(r.Status).Sprintf("%-9s", r.Status),
				runSummary(r.Agent, r.Status, r.ExitCode, r.DurationSeconds),
				r.StartedAt.Local().Format(time.RFC822))
			if r.SessionID != "" {
				fmt.Printf("  session: %s\n", r.SessionID)
			}
			if runsFlags.output && r.Output != "" {
				fmt.Printf("  output:\n%s\n", indent(r.Output, "    "))
			}
		}
		return nil
	},
}

func runStatusColor(s models.RunStatus) *color.Color {
	switch s {
	case models.RunStatusCompleted:
		return color.New(color.FgGreen)
	case models.RunStatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func init() {
	runsCmd.Flags().IntVarP(&runsFlags.limit, "limit", "n", 10, "max runs to show (0 = all)")
	runsCmd.Flags().BoolVarP(&runsFlags.output, "output", "o", false, "include captured output")
}
