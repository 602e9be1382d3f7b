// Package loadorder owns the ordered, per-game sequence of mods with
// enable/disable flags. It is the single source of truth for
// priority: later entries win path conflicts ("last loaded
// overrides"). The order is persisted as human-inspectable YAML in
// the game profile.
package loadorder

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// ModChecker reports whether a mod exists in the store. The load
// order references mods by id only and never owns them.
type ModChecker interface {
	Has(id types.ModID) bool
}

// Order is a game's load order.
type Order struct {
	fs      types.FS
	game    *types.Game
	entries []types.LoadOrderEntry
}

// New returns an empty load order for the game.
func New(fsys types.FS, game *types.Game) *Order {
	return &Order{fs: fsys, game: game}
}

// Load reads the persisted load order for the game. A missing file
// yields an empty order. Entries whose mod no longer exists in the
// store are dropped with a warning.
func Load(fsys types.FS, game *types.Game, store ModChecker) (*Order, error) {
	o := New(fsys, game)

	data, err := fsys.ReadFile(game.LoadOrderPath())
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to read load order for %q", game.ID)
	}

	var entries []types.LoadOrderEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal,
			"load order for %q is malformed", game.ID)
	}

	logger := logging.GetLogger("loadorder")
	for _, e := range entries {
		if store != nil && !store.Has(e.ModID) {
			logger.Warn().Str("mod", string(e.ModID)).Str("game", game.ID).
				Msg("Dropping load order entry for missing mod")
			continue
		}
		o.entries = append(o.entries, e)
	}
	return o, nil
}

// Save persists the order to the game profile.
func (o *Order) Save() error {
	data, err := yaml.Marshal(o.entries)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode load order")
	}
	if err := o.fs.WriteFile(o.game.LoadOrderPath(), data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate,
			"failed to write load order for %q", o.game.ID)
	}
	return nil
}

// Add appends a mod at the end of the sequence, enabled. With
// later-wins priority the new mod overrides existing conflicts.
func (o *Order) Add(id types.ModID) error {
	if o.indexOf(id) >= 0 {
		return errors.Newf(errors.ErrModDuplicate, "mod %q is already in the load order", id)
	}
	o.entries = append(o.entries, types.LoadOrderEntry{ModID: id, Enabled: true})
	return nil
}

// Remove deletes a mod's entry, shifting later ranks down.
func (o *Order) Remove(id types.ModID) error {
	i := o.indexOf(id)
	if i < 0 {
		return errors.Newf(errors.ErrModUnknown, "mod %q is not in the load order", id)
	}
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	return nil
}

// Reorder moves a mod to newRank; all other ranks shift
// contiguously. Ranks outside the sequence are clamped.
func (o *Order) Reorder(id types.ModID, newRank int) error {
	i := o.indexOf(id)
	if i < 0 {
		return errors.Newf(errors.ErrModUnknown, "mod %q is not in the load order", id)
	}

	if newRank < 0 {
		newRank = 0
	}
	if newRank >= len(o.entries) {
		newRank = len(o.entries) - 1
	}

	entry := o.entries[i]
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	o.entries = append(o.entries[:newRank], append([]types.LoadOrderEntry{entry}, o.entries[newRank:]...)...)
	return nil
}

// SetEnabled toggles a mod's visibility without moving its rank.
func (o *Order) SetEnabled(id types.ModID, enabled bool) error {
	i := o.indexOf(id)
	if i < 0 {
		return errors.Newf(errors.ErrModUnknown, "mod %q is not in the load order", id)
	}
	o.entries[i].Enabled = enabled
	return nil
}

// Rank returns a mod's position, or -1 when absent.
func (o *Order) Rank(id types.ModID) int {
	return o.indexOf(id)
}

// Len returns the number of entries.
func (o *Order) Len() int {
	return len(o.entries)
}

// Snapshot returns a copy of the ordered sequence. This is the
// authoritative ordering consumed by the path resolver.
func (o *Order) Snapshot() []types.LoadOrderEntry {
	out := make([]types.LoadOrderEntry, len(o.entries))
	copy(out, o.entries)
	return out
}

func (o *Order) indexOf(id types.ModID) int {
	for i, e := range o.entries {
		if e.ModID == id {
			return i
		}
	}
	return -1
}
