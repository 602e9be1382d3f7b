package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmm-manager/tmm/pkg/commands"
	"github.com/tmm-manager/tmm/pkg/style"
)

var technique string

var deployCmd = &cobra.Command{
	Use:   "deploy <game>",
	Short: "Materialize the load order into the game directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		res, err := app.Deploy(cmd.Context(), commands.DeployOptions{
			GameID:    args[0],
			Technique: technique,
			DryRun:    dryRun,
		})
		if err != nil {
			return err
		}
		fmt.Println(style.RenderDeployResult(res))
		return nil
	},
}

var undeployCmd = &cobra.Command{
	Use:   "undeploy <game>",
	Short: "Restore the game directory to its pristine state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		res, err := app.Undeploy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(style.RenderUndeployResult(res))
		return nil
	},
}

var redeployCmd = &cobra.Command{
	Use:   "redeploy <game>",
	Short: "Replace the current deployment with the present load order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		res, err := app.Redeploy(cmd.Context(), commands.DeployOptions{
			GameID:    args[0],
			Technique: technique,
			DryRun:    dryRun,
		})
		if err != nil {
			return err
		}
		fmt.Println(style.RenderDeployResult(res))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <game>",
	Short: "Show deployment state, load order and conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		status, err := app.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Println(style.RenderStatus(status))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{deployCmd, redeployCmd} {
		cmd.Flags().StringVar(&technique, "technique", "",
			"Materialization technique: copy, hardlink or symlink (default from config)")
	}
	rootCmd.AddCommand(deployCmd, undeployCmd, redeployCmd, statusCmd)
}
