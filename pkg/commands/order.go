package commands

import (
	"github.com/tmm-manager/tmm/pkg/types"
)

// SetEnabled toggles a mod in the load order without moving it.
func (a *App) SetEnabled(gameID string, id types.ModID, enabled bool) error {
	game, err := a.game(gameID)
	if err != nil {
		return err
	}
	order, err := a.order(game)
	if err != nil {
		return err
	}
	if err := order.SetEnabled(id, enabled); err != nil {
		return err
	}
	return order.Save()
}

// Reorder moves a mod to newRank in the load order. Ranks outside
// the list clamp to its ends.
func (a *App) Reorder(gameID string, id types.ModID, newRank int) error {
	game, err := a.game(gameID)
	if err != nil {
		return err
	}
	order, err := a.order(game)
	if err != nil {
		return err
	}
	if err := order.Reorder(id, newRank); err != nil {
		return err
	}
	return order.Save()
}

// LoadOrder returns the game's current load order snapshot.
func (a *App) LoadOrder(gameID string) ([]types.LoadOrderEntry, error) {
	game, err := a.game(gameID)
	if err != nil {
		return nil, err
	}
	order, err := a.order(game)
	if err != nil {
		return nil, err
	}
	return order.Snapshot(), nil
}
