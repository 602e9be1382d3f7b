package commands

import (
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// InstallOptions defines the options for the Install command.
type InstallOptions struct {
	// GameID names the registered game profile receiving the mod.
	GameID string
	// Name is the display name; the mod ID is derived from it.
	Name string
	// ExtractedRoot is the directory holding the already extracted
	// mod tree. The tree is moved into the profile.
	ExtractedRoot string
}

// Install registers an extracted mod tree with the game's store and
// appends it, enabled, to the load order.
func (a *App) Install(opts InstallOptions) (*types.Mod, error) {
	log := logging.GetLogger("commands.install")

	game, err := a.game(opts.GameID)
	if err != nil {
		return nil, err
	}

	store := a.store(game)
	mod, err := store.Install(opts.Name, opts.ExtractedRoot)
	if err != nil {
		return nil, err
	}

	order, err := a.order(game)
	if err != nil {
		return nil, err
	}
	if err := order.Add(mod.ID); err != nil {
		return nil, err
	}
	if err := order.Save(); err != nil {
		return nil, err
	}

	log.Info().Str("game", game.ID).Str("mod", string(mod.ID)).Msg("Mod installed")
	return mod, nil
}
