package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/pkg/models"
)

var listFlags struct {
	status  string
	ready   bool
	blocked bool
	epic    string
	all     bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks in the backlog. By default terminal tasks are hidden;
use --all to include them, or filter with --status, --ready, --blocked,
and --epic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}

		var tasks []*models.Task
		switch {
		case listFlags.ready:
			tasks, err = repo.Ready()
		case listFlags.blocked:
			tasks, err = repo.Blocked()
		default:
			tasks, err = repo.All()
		}
		if err != nil {
			return err
		}

		shown := 0
		for _, t := range tasks {
			if listFlags.status != "" && string(t.Status) != listFlags.status {
				continue
			}
			if listFlags.epic != "" && t.Epic != listFlags.epic {
				continue
			}
			if !listFlags.all && listFlags.status == "" && !listFlags.ready && !listFlags.blocked && t.Status.Terminal() {
				continue
			}
			printTaskLine(t)
			shown++
		}
		if shown == 0 {
			fmt.Println("No tasks. Add one with 'fuel add <title>'.")
		}
		return nil
	},
}

func printTaskLine(t *models.Task) {
	status := statusColor(t.Status).Sprintf("%-11s", t.Status)
	line := fmt.Sprintf("%s %s P%d %-2s %s", color.CyanString(t.ID), status, t.Priority, t.Size, t.Title)
	var tags []string
	if t.Epic != "" {
		tags = append(tags, t.Epic)
	}
	tags = append(tags, t.Labels...)
	if len(t.BlockedBy) > 0 {
		tags = append(tags, "blocked-by:"+strings.Join(t.BlockedBy, ","))
	}
	if len(tags) > 0 {
		line += color.New(color.Faint).Sprintf("  [%s]", strings.Join(tags, " "))
	}
	fmt.Println(line)
}

func statusColor(s models.TaskStatus) *color.Color {
	switch s {
	case models.TaskStatusOpen:
		return color.New(color.FgYellow)
	case models.TaskStatusInProgress:
		return color.New(color.FgBlue)
	case models.TaskStatusClosed:
		return color.New(color.FgGreen)
	case models.TaskStatusCancelled:
		return color.New(color.Faint)
	default:
		return color.New(color.Reset)
	}
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listFlags.status, "status", "", "filter by status")
	f.BoolVar(&listFlags.ready, "ready", false, "only tasks ready to run")
	f.BoolVar(&listFlags.blocked, "blocked", false, "only tasks waiting on blockers")
	f.StringVar(&listFlags.epic, "epic", "", "filter by epic id")
	f.BoolVarP(&listFlags.all, "all", "a", false, "include closed and cancelled tasks")
}
