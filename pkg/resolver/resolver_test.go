package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/resolver"
	"github.com/tmm-manager/tmm/pkg/types"
)

// stubLister maps mod ids to their file listings.
type stubLister map[types.ModID][]string

func (s stubLister) ListFiles(id types.ModID) ([]string, error) {
	files, ok := s[id]
	if !ok {
		return nil, errors.Newf(errors.ErrModUnknown, "mod %q is not installed", id)
	}
	return files, nil
}

func order(specs ...string) []types.LoadOrderEntry {
	// "a" enabled, "!a" disabled
	var entries []types.LoadOrderEntry
	for _, s := range specs {
		enabled := true
		if s[0] == '!' {
			enabled = false
			s = s[1:]
		}
		entries = append(entries, types.LoadOrderEntry{ModID: types.ModID(s), Enabled: enabled})
	}
	return entries
}

func TestResolve_LaterWins(t *testing.T) {
	store := stubLister{
		"a": {"x.cfg", "only-a.txt"},
		"b": {"x.cfg", "only-b.txt"},
	}

	tree, err := resolver.Resolve(order("a", "b"), store, resolver.Options{})
	require.NoError(t, err)

	entry := tree.Get("x.cfg")
	require.NotNil(t, entry)
	assert.Equal(t, types.ModID("b"), entry.Winner)
	assert.Equal(t, []types.ModID{"a"}, entry.Shadowed)

	assert.Equal(t, types.ModID("a"), tree.Get("only-a.txt").Winner)
	assert.Equal(t, types.ModID("b"), tree.Get("only-b.txt").Winner)
	assert.Equal(t, 3, tree.Len())
}

func TestResolve_FullConflictHistory(t *testing.T) {
	store := stubLister{
		"a": {"x.cfg"},
		"b": {"x.cfg"},
		"c": {"x.cfg"},
	}

	tree, err := resolver.Resolve(order("a", "b", "c"), store, resolver.Options{})
	require.NoError(t, err)

	entry := tree.Get("x.cfg")
	assert.Equal(t, types.ModID("c"), entry.Winner)
	// Every displaced provider is preserved in ascending priority.
	assert.Equal(t, []types.ModID{"a", "b"}, entry.Shadowed)
}

func TestResolve_DisabledModsNeverShadow(t *testing.T) {
	store := stubLister{
		"a": {"x.cfg", "a-only.txt"},
		"b": {"x.cfg"},
	}

	tree, err := resolver.Resolve(order("!a", "b"), store, resolver.Options{})
	require.NoError(t, err)

	entry := tree.Get("x.cfg")
	assert.Equal(t, types.ModID("b"), entry.Winner)
	assert.Empty(t, entry.Shadowed, "disabled mods never shadow")
	assert.Nil(t, tree.Get("a-only.txt"), "disabled-only paths are absent")
}

func TestResolve_DisablingRemovesPathsUnlessProvidedElsewhere(t *testing.T) {
	store := stubLister{
		"a": {"shared.esp", "a.esp"},
		"b": {"shared.esp"},
	}

	enabled, err := resolver.Resolve(order("a", "b"), store, resolver.Options{})
	require.NoError(t, err)
	require.Equal(t, 3, enabled.Len())

	disabled, err := resolver.Resolve(order("!a", "b"), store, resolver.Options{})
	require.NoError(t, err)

	assert.Nil(t, disabled.Get("a.esp"))
	require.NotNil(t, disabled.Get("shared.esp"))
	assert.Equal(t, types.ModID("b"), disabled.Get("shared.esp").Winner)
}

func TestResolve_EmptyOrder(t *testing.T) {
	tree, err := resolver.Resolve(nil, stubLister{}, resolver.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, tree.Len())
}

func TestResolve_Deterministic(t *testing.T) {
	store := stubLister{
		"a": {"p1", "p2", "p3"},
		"b": {"p2", "p4"},
		"c": {"p1", "p4", "p5"},
	}
	entries := order("a", "b", "c")

	first, err := resolver.Resolve(entries, store, resolver.Options{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := resolver.Resolve(entries, store, resolver.Options{})
		require.NoError(t, err)
		require.Equal(t, first.Keys(), again.Keys())
		for _, key := range first.Keys() {
			assert.Equal(t, first.Get(key), again.Get(key))
		}
	}
}

func TestResolve_UnknownMod(t *testing.T) {
	_, err := resolver.Resolve(order("ghost"), stubLister{}, resolver.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModUnknown))
}

func TestResolve_CaseFold(t *testing.T) {
	store := stubLister{
		"a": {"Textures/Armor.dds"},
		"b": {"textures/armor.dds"},
	}

	t.Run("folded", func(t *testing.T) {
		tree, err := resolver.Resolve(order("a", "b"), store, resolver.Options{CaseFold: true})
		require.NoError(t, err)

		require.Equal(t, 1, tree.Len())
		entry := tree.Get("textures/armor.dds")
		require.NotNil(t, entry)
		assert.Equal(t, types.ModID("b"), entry.Winner)
		assert.Equal(t, []types.ModID{"a"}, entry.Shadowed)
		// The entry carries the winner's own spelling.
		assert.Equal(t, "textures/armor.dds", entry.Path)
	})

	t.Run("not folded", func(t *testing.T) {
		tree, err := resolver.Resolve(order("a", "b"), store, resolver.Options{})
		require.NoError(t, err)
		assert.Equal(t, 2, tree.Len(), "distinct-case paths stay distinct")
	})
}

func TestResolve_ScenarioXCfg(t *testing.T) {
	// Mods A={"x.cfg": "1"} rank 0, B={"x.cfg": "2"} rank 1, both
	// enabled: B wins, A is shadowed.
	store := stubLister{
		"mod-a": {"x.cfg"},
		"mod-b": {"x.cfg"},
	}

	tree, err := resolver.Resolve(order("mod-a", "mod-b"), store, resolver.Options{})
	require.NoError(t, err)

	entry := tree.Get("x.cfg")
	require.NotNil(t, entry)
	assert.Equal(t, types.ModID("mod-b"), entry.Winner)
	assert.Equal(t, []types.ModID{"mod-a"}, entry.Shadowed)
}
