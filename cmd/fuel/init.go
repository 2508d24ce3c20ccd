package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the state directory and a starter config",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := stateDir()
		if err != nil {
			return err
		}
		path, err := config.WriteExample(dir)
		if err != nil {
			return err
		}
		fmt.Printf("%s Initialized %s\n", color.GreenString("✓"), dir)
		fmt.Printf("  Edit %s to point at your agents, then run 'fuel add' and 'fuel consume'.\n", path)
		return nil
	},
}
