package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tmm-manager/tmm/pkg/commands"
	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/style"
	"github.com/tmm-manager/tmm/pkg/types"
)

var installCmd = &cobra.Command{
	Use:   "install <game> <name> <extracted-root>",
	Short: "Install an extracted mod tree and append it to the load order",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		mod, err := app.Install(commands.InstallOptions{
			GameID:        args[0],
			Name:          args[1],
			ExtractedRoot: args[2],
		})
		if err != nil {
			return err
		}
		fmt.Printf("installed %s\n", style.ModStyle.Render(string(mod.ID)))
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <game> <mod>",
	Short: "Remove a mod's files and its load order entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		err = app.Uninstall(cmd.Context(), commands.UninstallOptions{
			GameID: args[0],
			ModID:  types.ModID(args[1]),
			Force:  force,
		})
		if err != nil {
			return err
		}
		fmt.Printf("uninstalled %s\n", args[1])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <game>",
	Short: "Show the game's load order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		order, err := app.LoadOrder(args[0])
		if err != nil {
			return err
		}
		fmt.Println(style.RenderLoadOrder(order))
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files <game> <mod>",
	Short: "List the files a mod provides",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		files, err := app.ListFiles(args[0], types.ModID(args[1]))
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <game> <mod>",
	Short: "Enable a mod without moving it in the order",
	Args:  cobra.ExactArgs(2),
	RunE:  setEnabledRunE(true),
}

var disableCmd = &cobra.Command{
	Use:   "disable <game> <mod>",
	Short: "Disable a mod, keeping its rank",
	Args:  cobra.ExactArgs(2),
	RunE:  setEnabledRunE(false),
}

func setEnabledRunE(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		return app.SetEnabled(args[0], types.ModID(args[1]), enabled)
	}
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <game> <mod> <rank>",
	Short: "Move a mod to a new rank (later ranks win conflicts)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rank, err := strconv.Atoi(args[2])
		if err != nil {
			return errors.Newf(errors.ErrInvalidInput, "rank must be a number, got %q", args[2])
		}
		app, err := newApp()
		if err != nil {
			return err
		}
		return app.Reorder(args[0], types.ModID(args[1]), rank)
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <game>",
	Short: "Show contested paths with winners and shadow history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		conflicts, err := app.Conflicts(args[0])
		if err != nil {
			return err
		}
		fmt.Println(style.RenderConflicts(conflicts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd, uninstallCmd, listCmd, filesCmd,
		enableCmd, disableCmd, reorderCmd, conflictsCmd)
}
