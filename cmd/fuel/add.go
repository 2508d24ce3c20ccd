package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/task"
	"github.com/fuelsh/fuel/pkg/models"
)

var addFlags struct {
	description string
	taskType    string
	priority    int
	size        string
	complexity  string
	labels      []string
	epic        string
	blockedBy   []string
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the backlog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}

		opts := task.CreateOptions{
			Title:       strings.Join(args, " "),
			Description: addFlags.description,
			Type:        models.TaskType(addFlags.taskType),
			Size:        models.Size(addFlags.size),
			Complexity:  models.Complexity(addFlags.complexity),
			Labels:      addFlags.labels,
			Epic:        addFlags.epic,
			BlockedBy:   addFlags.blockedBy,
		}
		if cmd.Flags().Changed("priority") {
			opts.Priority = &addFlags.priority
		}

		t, err := repo.Create(opts)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s  %s\n", color.GreenString("✓"), color.CyanString(t.ID), t.Title)
		return nil
	},
}

func init() {
	f := addCmd.Flags()
	f.StringVarP(&addFlags.description, "description", "d", "", "longer description")
	f.StringVarP(&addFlags.taskType, "type", "t", "", "task type (bug|feature|task|epic|chore|docs|test)")
	f.IntVarP(&addFlags.priority, "priority", "p", models.PriorityDefault, "priority 0-4, lower runs first")
	f.StringVarP(&addFlags.size, "size", "s", "", "size (xs|s|m|l|xl)")
	f.StringVarP(&addFlags.complexity, "complexity", "c", "", "complexity (trivial|simple|moderate|complex)")
	f.StringSliceVarP(&addFlags.labels, "label", "l", nil, "labels (repeatable)")
	f.StringVarP(&addFlags.epic, "epic", "e", "", "owning epic id")
	f.StringSliceVarP(&addFlags.blockedBy, "blocked-by", "b", nil, "blocking task ids (repeatable)")
}
