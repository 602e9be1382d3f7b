package commands

import (
	"context"

	"github.com/tmm-manager/tmm/pkg/games"
	"github.com/tmm-manager/tmm/pkg/types"
)

// AddGame registers a game and creates its profile directory scheme.
func (a *App) AddGame(opts games.AddOptions) (*types.Game, error) {
	return a.Games.Add(opts)
}

// ListGames returns all registered games sorted by ID.
func (a *App) ListGames() ([]*types.Game, error) {
	return a.Games.List()
}

// RemoveGame unregisters a game. A deployed game is undeployed first
// so no overlay files are orphaned in its install directory. With
// purgeProfile the mods, downloads and work directories go too.
func (a *App) RemoveGame(ctx context.Context, gameID string, purgeProfile bool) error {
	game, err := a.game(gameID)
	if err != nil {
		return err
	}
	if _, err := a.Engine.Undeploy(ctx, game); err != nil {
		return err
	}
	return a.Games.Remove(gameID, purgeProfile)
}
