// Package resolver computes the merged virtual tree for a load order
// snapshot over a mod store. Resolution is a pure function of its
// inputs: for a fixed snapshot and store state, repeated calls yield
// identical trees. Later load order entries win conflicts; every
// displaced provider is preserved in the entry's shadowed list.
package resolver

import (
	"strings"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// FileLister is the part of the mod store resolution needs: the
// deterministic, lexicographically ordered file listing of one mod.
type FileLister interface {
	ListFiles(id types.ModID) ([]string, error)
}

// Options controls resolution behavior.
type Options struct {
	// CaseFold keys conflicts case-insensitively. Use for games whose
	// native filesystem convention folds case (Windows titles run
	// through a compatibility layer). This is an explicit choice per
	// game, never inferred.
	CaseFold bool
}

// Resolve merges the enabled entries of a load order snapshot into a
// virtual tree. Entries are visited in ascending priority, so a
// later mod overwrites the recorded winner and pushes the previous
// one onto the shadowed list. An empty snapshot yields an empty
// tree. Paths provided only by disabled mods never appear.
func Resolve(snapshot []types.LoadOrderEntry, store FileLister, opts Options) (*types.VirtualTree, error) {
	logger := logging.GetLogger("resolver")

	tree := types.NewVirtualTree()
	for _, entry := range snapshot {
		if !entry.Enabled {
			continue
		}

		files, err := store.ListFiles(entry.ModID)
		if err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err),
				"cannot resolve load order entry %q", entry.ModID)
		}

		for _, rel := range files {
			key := rel
			if opts.CaseFold {
				key = strings.ToLower(rel)
			}
			tree.Put(key, rel, entry.ModID)
		}
	}

	logger.Debug().
		Int("paths", tree.Len()).
		Int("conflicts", len(tree.Conflicts())).
		Bool("case_fold", opts.CaseFold).
		Msg("Resolved virtual tree")
	return tree, nil
}
