package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fuelsh/fuel/pkg/models"
)

var epicFlags struct {
	description string
	approvedBy  string
	reason      string
}

var epicCmd = &cobra.Command{
	Use:   "epic",
	Short: "Manage epics",
}

var epicCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an epic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		e, err := epics.Create(strings.Join(args, " "), epicFlags.description)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s  %s\n", color.GreenString("✓"), color.CyanString(e.ID), e.Title)
		return nil
	},
}

var epicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List epics with their derived status",
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		all, err := epics.All()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No epics. Create one with 'fuel epic create <title>'.")
			return nil
		}
		for _, e := range all {
			status, err := epics.Status(e.ID)
			if err != nil {
				return err
			}
			members, err := epics.Members(e.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s %s %s\n", color.CyanString(e.ID),
				epicStatusColor(status).Sprintf("%-17s", status),
				color.New(color.Faint).Sprintf("%d tasks", len(members)), e.Title)
		}
		return nil
	},
}

var epicShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an epic and its member tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		e, err := epics.Find(args[0])
		if err != nil {
			return err
		}
		status, err := epics.Status(e.ID)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", color.CyanString(e.ID), color.New(color.Bold).Sprint(e.Title))
		fmt.Printf("  status: %s\n", epicStatusColor(status).Sprint(status))
		if e.Description != "" {
			fmt.Printf("\n  %s\n", strings.ReplaceAll(e.Description, "\n", "\n  "))
		}
		if e.ApprovedAt != nil {
			fmt.Printf("  approved by %s at %s\n", e.ApprovedBy, e.ApprovedAt.Local())
		}
		if e.ChangesRequestedAt != nil {
			fmt.Printf("  changes requested at %s\n", e.ChangesRequestedAt.Local())
		}

		members, err := epics.Members(e.ID)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			fmt.Println()
			for _, t := range members {
				printTaskLine(t)
			}
		}
		return nil
	},
}

var epicApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve an epic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		e, err := epics.Approve(args[0], epicFlags.approvedBy)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s approved by %s\n", color.GreenString("✓"), color.CyanString(e.ID), e.ApprovedBy)
		return nil
	},
}

var epicRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Request changes; reopens closed member tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		e, err := epics.Reject(args[0], epicFlags.reason)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s sent back for changes\n", color.YellowString("↩"), color.CyanString(e.ID))
		return nil
	},
}

var epicReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Mark an epic reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epics, _, _, err := openEpicRepo()
		if err != nil {
			return err
		}
		e, err := epics.MarkReviewed(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s marked reviewed\n", color.GreenString("✓"), color.CyanString(e.ID))
		return nil
	},
}

func epicStatusColor(s models.EpicStatus) *color.Color {
	switch s {
	case models.EpicStatusApproved:
		return color.New(color.FgGreen)
	case models.EpicStatusReviewPending, models.EpicStatusReviewed:
		return color.New(color.FgYellow)
	case models.EpicStatusChangesRequested:
		return color.New(color.FgRed)
	case models.EpicStatusInProgress:
		return color.New(color.FgBlue)
	default:
		return color.New(color.Faint)
	}
}

func init() {
	epicCreateCmd.Flags().StringVarP(&epicFlags.description, "description", "d", "", "longer description")
	epicApproveCmd.Flags().StringVar(&epicFlags.approvedBy, "by", "", "approver name")
	epicRejectCmd.Flags().StringVar(&epicFlags.reason, "reason", "", "what needs to change")

	epicCmd.AddCommand(epicCreateCmd)
	epicCmd.AddCommand(epicListCmd)
	epicCmd.AddCommand(epicShowCmd)
	epicCmd.AddCommand(epicApproveCmd)
	epicCmd.AddCommand(epicRejectCmd)
	epicCmd.AddCommand(epicReviewCmd)
}
