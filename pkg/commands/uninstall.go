package commands

import (
	"context"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// UninstallOptions defines the options for the Uninstall command.
type UninstallOptions struct {
	GameID string
	ModID  types.ModID
	// Force undeploys the game first when the mod is part of the
	// deployed set.
	Force bool
}

// Uninstall removes a mod's files and scrubs it from the load order.
// A deployed mod is refused unless Force is set, in which case the
// game is undeployed first.
func (a *App) Uninstall(ctx context.Context, opts UninstallOptions) error {
	log := logging.GetLogger("commands.uninstall")

	game, err := a.game(opts.GameID)
	if err != nil {
		return err
	}
	store := a.store(game)

	deployed, err := a.Ledger.IsModDeployed(game.ID, opts.ModID)
	if err != nil {
		return err
	}
	if deployed {
		if !opts.Force {
			return errors.Newf(errors.ErrModInUse,
				"mod %q is deployed to game %q; undeploy first or pass --force",
				opts.ModID, game.ID)
		}
		log.Warn().Str("game", game.ID).Str("mod", string(opts.ModID)).
			Msg("Mod is deployed, undeploying before uninstall")
		if _, err := a.Engine.Undeploy(ctx, game); err != nil {
			return err
		}
	}

	// The order must be loaded while the mod still exists: Load drops
	// entries whose mod is gone from the store.
	order, err := a.order(game)
	if err != nil {
		return err
	}

	if err := store.Uninstall(opts.ModID, opts.Force); err != nil {
		return err
	}

	if err := order.Remove(opts.ModID); err != nil && !errors.IsErrorCode(err, errors.ErrModUnknown) {
		return err
	}
	if err := order.Save(); err != nil {
		return err
	}

	log.Info().Str("game", game.ID).Str("mod", string(opts.ModID)).Msg("Mod uninstalled")
	return nil
}
