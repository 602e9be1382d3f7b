package commands

import (
	"context"

	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// DeployOptions defines the options for the Deploy and Redeploy
// commands.
type DeployOptions struct {
	GameID string
	// Technique overrides the configured default when non-empty.
	Technique string
	// DryRun plans the batch without touching the game directory or
	// the ledger.
	DryRun bool
}

// Deploy resolves the game's load order and materializes it into the
// install directory. An interrupted earlier deployment is recovered
// (undeployed) automatically before the new batch starts. With
// DryRun set, the planned batch is returned and nothing is touched.
func (a *App) Deploy(ctx context.Context, opts DeployOptions) (*types.DeployResult, error) {
	log := logging.GetLogger("commands.deploy")

	game, err := a.game(opts.GameID)
	if err != nil {
		return nil, err
	}
	technique, err := a.technique(opts.Technique)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		tree, err := a.resolveTree(game)
		if err != nil {
			return nil, err
		}
		return a.Engine.Plan(tree, game, technique)
	}

	if err := a.recoverIfNeeded(ctx, game); err != nil {
		return nil, err
	}

	tree, err := a.resolveTree(game)
	if err != nil {
		return nil, err
	}

	res, err := a.Engine.Deploy(ctx, tree, game, technique)
	if err != nil {
		return nil, err
	}
	log.Info().Str("game", game.ID).Int("placed", res.Placed).Msg("Deploy complete")
	return res, nil
}

// Undeploy restores the game's install directory to its pristine
// state. A clean directory is a successful no-op.
func (a *App) Undeploy(ctx context.Context, gameID string) (*types.UndeployResult, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}
	return a.Engine.Undeploy(ctx, game)
}

// Redeploy replaces the current deployment with one reflecting the
// present load order.
func (a *App) Redeploy(ctx context.Context, opts DeployOptions) (*types.DeployResult, error) {
	game, err := a.game(opts.GameID)
	if err != nil {
		return nil, err
	}
	technique, err := a.technique(opts.Technique)
	if err != nil {
		return nil, err
	}
	tree, err := a.resolveTree(game)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return a.Engine.Plan(tree, game, technique)
	}
	return a.Engine.Redeploy(ctx, tree, game, technique)
}

// recoverIfNeeded undeploys the remnants of an interrupted deploy.
func (a *App) recoverIfNeeded(ctx context.Context, game *types.Game) error {
	needs, err := a.Engine.NeedsRecovery(game)
	if err != nil {
		return err
	}
	if !needs {
		return nil
	}
	logger := logging.GetLogger("commands.deploy")
	logger.Warn().Str("game", game.ID).
		Msg("Recovering interrupted deployment")
	_, err = a.Engine.Undeploy(ctx, game)
	return err
}
