package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/backoff"
	"github.com/fuelsh/fuel/pkg/models"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in detail",
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

		fmt.Printf("%s  %s\n", color.CyanString(t.ID), color.New(color.Bold).Sprint(t.Title))
		fmt.Printf("  status:     %s\n", statusColor(t.Status).Sprint(t.Status))
		fmt.Printf("  type:       %s   priority: %d   size: %s   complexity: %s\n",
			t.Type, t.Priority, t.Size, t.Complexity)
		if len(t.Labels) > 0 {
			fmt.Printf("  labels:     %s\n", strings.Join(t.Labels, ", "))
		}
		if t.Epic != "" {
			fmt.Printf("  epic:       %s\n", t.Epic)
		}
		if len(t.BlockedBy) > 0 {
			fmt.Printf("  blocked by: %s\n", strings.Join(t.BlockedBy, ", "))
		}
		fmt.Printf("  created:    %s   updated: %s\n",
			t.CreatedAt.Local().Format(time.RFC822), t.UpdatedAt.Local().Format(time.RFC822))
		if t.Description != "" {
			fmt.Printf("\n  %s\n", strings.ReplaceAll(t.Description, "\n", "\n  "))
		}
		if t.Reason != "" {
			fmt.Printf("\n  reason: %s\n", t.Reason)
		}
		if t.CommitHash != "" {
			fmt.Printf("  commit: %s\n", t.CommitHash)
		}
		if len(t.LastReviewIssues) > 0 {
			fmt.Printf("  review issues:\n")
			for _, issue := range t.LastReviewIssues {
				fmt.Printf("    - %s\n", issue)
			}
		}
		if t.Consumed {
			fmt.Printf("\n  consumed: %s", consumedSummary(t.ConsumedAt, t.ConsumePID, t.ConsumedExitCode))
		}

		// Most recent attempts, newest first.
		runs, cleanup, err := openRuns(dir)
		if err != nil {
			return nil
		}
		defer cleanup()
		history, err := runs.ListRuns(t.ID, 5)
		if err != nil || len(history) == 0 {
			return nil
		}
		fmt.Printf("\n  recent runs:\n")
		for _, r := range history {
			fmt.Printf("    %s  %s\n", r.ID, runSummary(r.Agent, r.Status, r.ExitCode, r.DurationSeconds))
		}
		return nil
	},
}

func consumedSummary(at *time.Time, pid, exit *int) string {
	parts := []string{}
	if at != nil {
		parts = append(parts, "at "+at.Local().Format(time.RFC822))
	}
	if pid != nil {
		parts = append(parts, fmt.Sprintf("pid %d", *pid))
	}
	if exit != nil {
		parts = append(parts, fmt.Sprintf("exit %d", *exit))
	}
	return strings.Join(parts, ", ") + "\n"
}

func runSummary(agent string, status models.RunStatus, exit *int, duration *float64) string {
	s := fmt.Sprintf("%s %s", agent, status)
	if exit != nil {
		s += fmt.Sprintf(" (exit %d)", *exit)
	}
	if duration != nil {
		s += " in " + backoff.Format(time.Duration(*duration*float64(time.Second)))
	}
	return s
}
