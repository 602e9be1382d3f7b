package commands

import (
	"github.com/tmm-manager/tmm/pkg/ledger"
	"github.com/tmm-manager/tmm/pkg/types"
)

// GameStatus is the full state of one game profile.
type GameStatus struct {
	Game     *types.Game
	Deployed bool
	// NeedsRecovery reports an interrupted deployment awaiting a
	// recovery undeploy.
	NeedsRecovery bool
	Batch         *ledger.Batch
	Order         []types.LoadOrderEntry
	// Conflicts lists virtual paths provided by more than one
	// enabled mod.
	Conflicts []*types.VirtualPathEntry
}

// Status reports the deployment and load-order state of a game.
func (a *App) Status(gameID string) (*GameStatus, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}

	batch, err := a.Ledger.Load(game.ID)
	if err != nil {
		return nil, err
	}

	order, err := a.order(game)
	if err != nil {
		return nil, err
	}

	tree, err := a.resolveTree(game)
	if err != nil {
		return nil, err
	}

	return &GameStatus{
		Game:          game,
		Deployed:      batch != nil && batch.Confirmed,
		NeedsRecovery: batch != nil && !batch.Confirmed,
		Batch:         batch,
		Order:         order.Snapshot(),
		Conflicts:     tree.Conflicts(),
	}, nil
}

// ListMods returns the installed mods of a game, sorted by ID.
func (a *App) ListMods(gameID string) ([]*types.Mod, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}
	return a.store(game).List()
}

// ListFiles returns the sorted relative paths a mod provides.
func (a *App) ListFiles(gameID string, id types.ModID) ([]string, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}
	return a.store(game).ListFiles(id)
}

// Conflicts returns the virtual paths contested between enabled mods
// under the current load order.
func (a *App) Conflicts(gameID string) ([]*types.VirtualPathEntry, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}
	tree, err := a.resolveTree(game)
	if err != nil {
		return nil, err
	}
	return tree.Conflicts(), nil
}
