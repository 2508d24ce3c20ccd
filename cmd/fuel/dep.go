package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <id> <blocker-id>",
	Short: "Block a task on another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.AddDependency(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s now blocked by %v\n", color.GreenString("✓"),
			color.CyanString(t.ID), t.BlockedBy)
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <id> <blocker-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency edge",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _, err := openTaskRepo()
		if err != nil {
			return err
		}
		t, err := repo.RemoveDependency(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s blocked by %v\n", color.GreenString("✓"),
			color.CyanString(t.ID), t.BlockedBy)
		return nil
	},
}

func init() {
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
}
