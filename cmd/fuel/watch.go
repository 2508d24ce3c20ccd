package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/internal/tui"
)

var watchAddrFlag string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running consume loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := watchAddrFlag
		if addr == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			addr = fmt.Sprintf("%s:%d", cfg.ConsumeBind, cfg.ConsumePort)
		}
		return tui.Run(addr)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddrFlag, "addr", "", "daemon address (default from config)")
}
