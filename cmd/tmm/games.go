package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmm-manager/tmm/pkg/games"
	"github.com/tmm-manager/tmm/pkg/style"
	"github.com/tmm-manager/tmm/pkg/utils"
)

var (
	gameAppID uint32
	gamePurge bool
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "Manage registered games",
}

var gamesAddCmd = &cobra.Command{
	Use:   "add <name> <install-path>",
	Short: "Register a game and create its mod profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		game, err := app.AddGame(games.AddOptions{
			Name:        args[0],
			InstallPath: utils.ExpandPath(args[1]),
			AppID:       gameAppID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (profile at %s)\n",
			style.TitleStyle.Render(game.ID), style.PathStyle.Render(game.ProfilePath))
		return nil
	},
}

var gamesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered games",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		list, err := app.ListGames()
		if err != nil {
			return err
		}
		fmt.Println(style.RenderGames(list))
		return nil
	},
}

var gamesRemoveCmd = &cobra.Command{
	Use:   "remove <game>",
	Short: "Unregister a game, undeploying any overlay first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		if err := app.RemoveGame(cmd.Context(), args[0], gamePurge); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	gamesAddCmd.Flags().Uint32Var(&gameAppID, "appid", 0, "Steam application id to record")
	gamesRemoveCmd.Flags().BoolVar(&gamePurge, "purge", false,
		"Also delete the game's mods, downloads and work directories")

	gamesCmd.AddCommand(gamesAddCmd, gamesListCmd, gamesRemoveCmd)
	rootCmd.AddCommand(gamesCmd)
}
