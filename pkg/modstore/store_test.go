// pkg/modstore/store_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Real filesystem (ALLOWED for modstore package)
// PURPOSE: Test mod installation, listing and removal

package modstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/filesystem"
	"github.com/tmm-manager/tmm/pkg/modstore"
	"github.com/tmm-manager/tmm/pkg/testutil"
	"github.com/tmm-manager/tmm/pkg/types"
)

type stubChecker struct {
	deployed map[types.ModID]bool
}

func (s *stubChecker) IsModDeployed(gameID string, id types.ModID) (bool, error) {
	return s.deployed[id], nil
}

func setupStore(t *testing.T) (*modstore.Store, types.FS, *types.Game, *stubChecker) {
	t.Helper()

	fs := filesystem.NewOS()
	game := testutil.NewGame(t, fs)
	checker := &stubChecker{deployed: make(map[types.ModID]bool)}
	return modstore.New(fs, game, checker), fs, game, checker
}

func extractTree(t *testing.T, fs types.FS, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "extracted")
	testutil.WriteTree(t, fs, root, files)
	return root
}

func TestInstall_RegistersMod(t *testing.T) {
	store, fs, game, _ := setupStore(t)

	root := extractTree(t, fs, map[string]string{
		"textures/armor.dds": "dds",
		"x.cfg":              "1",
	})

	mod, err := store.Install("SkyUI", root)
	require.NoError(t, err)

	assert.Equal(t, types.ModID("skyui"), mod.ID)
	assert.Equal(t, "SkyUI", mod.Name)
	assert.Equal(t, filepath.Join(game.ModsDir(), "skyui"), mod.Root)
	assert.False(t, mod.InstalledAt.IsZero())

	// Files moved under the mods dir, source gone.
	content, err := fs.ReadFile(filepath.Join(mod.Root, "x.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(content))
	_, err = fs.Stat(root)
	assert.True(t, os.IsNotExist(err))

	// Metadata round-trips through Get.
	loaded, err := store.Get("skyui")
	require.NoError(t, err)
	assert.Equal(t, mod.Name, loaded.Name)
}

func TestInstall_Duplicate(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	_, err := store.Install("SkyUI", extractTree(t, fs, map[string]string{"a": "1"}))
	require.NoError(t, err)

	_, err = store.Install("SkyUI", extractTree(t, fs, map[string]string{"b": "2"}))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModDuplicate))
}

func TestInstall_MetadataFailureReturnsTree(t *testing.T) {
	_, fs, game, checker := setupStore(t)

	ffs := testutil.NewFaultFS(fs)
	ffs.FailWrite(filepath.Join(game.ModsDir(), "skyui", modstore.MetadataFile),
		os.ErrPermission)
	store := modstore.New(ffs, game, checker)

	root := extractTree(t, fs, map[string]string{"x.cfg": "1"})
	_, err := store.Install("SkyUI", root)
	require.Error(t, err)

	// The imported tree is handed back, not destroyed.
	assert.Equal(t, map[string]string{"x.cfg": "1"}, testutil.ReadTree(t, fs, root))
	_, statErr := fs.Stat(filepath.Join(game.ModsDir(), "skyui"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInstall_RejectsEscapingSymlink(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	root := extractTree(t, fs, map[string]string{"data/ok.esp": "x"})
	require.NoError(t, fs.Symlink("../../../etc/passwd", filepath.Join(root, "data", "evil")))

	_, err := store.Install("Evil", root)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModInvalidTree))
}

func TestInstall_RejectsAbsoluteSymlink(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	root := extractTree(t, fs, map[string]string{"ok.esp": "x"})
	require.NoError(t, fs.Symlink("/etc/passwd", filepath.Join(root, "evil")))

	_, err := store.Install("Evil", root)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModInvalidTree))
}

func TestInstall_AllowsInternalSymlink(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	root := extractTree(t, fs, map[string]string{"real.cfg": "x"})
	require.NoError(t, fs.Symlink("real.cfg", filepath.Join(root, "alias.cfg")))

	_, err := store.Install("Linked", root)
	require.NoError(t, err)
}

func TestListFiles_SortedAndExcludesMetadata(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	root := extractTree(t, fs, map[string]string{
		"z.esp":             "z",
		"a/b/deep.nif":      "d",
		"a/shallow.txt":     "s",
		"meshes/chair.nif":  "m",
		"meshes/aaa/x.tree": "x",
	})
	_, err := store.Install("Big Mod", root)
	require.NoError(t, err)

	files, err := store.ListFiles("big-mod")
	require.NoError(t, err)

	want := []string{
		"a/b/deep.nif",
		"a/shallow.txt",
		"meshes/aaa/x.tree",
		"meshes/chair.nif",
		"z.esp",
	}
	assert.Equal(t, want, files)

	// Stable across calls.
	again, err := store.ListFiles("big-mod")
	require.NoError(t, err)
	assert.Equal(t, files, again)
}

func TestListFiles_UnknownMod(t *testing.T) {
	store, _, _, _ := setupStore(t)

	_, err := store.ListFiles("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModUnknown))
}

func TestUninstall(t *testing.T) {
	store, fs, _, checker := setupStore(t)

	mod, err := store.Install("SkyUI", extractTree(t, fs, map[string]string{"a": "1"}))
	require.NoError(t, err)

	t.Run("refuses when deployed", func(t *testing.T) {
		checker.deployed[mod.ID] = true
		err := store.Uninstall(mod.ID, false)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrModInUse))
		assert.True(t, store.Has(mod.ID))
	})

	t.Run("force bypasses the check", func(t *testing.T) {
		err := store.Uninstall(mod.ID, true)
		require.NoError(t, err)
		assert.False(t, store.Has(mod.ID))
	})

	t.Run("unknown mod", func(t *testing.T) {
		err := store.Uninstall("ghost", false)
		assert.True(t, errors.IsErrorCode(err, errors.ErrModUnknown))
	})
}

func TestList(t *testing.T) {
	store, fs, _, _ := setupStore(t)

	for _, name := range []string{"Zeta", "Alpha"} {
		_, err := store.Install(name, extractTree(t, fs, map[string]string{"f": name}))
		require.NoError(t, err)
	}

	mods, err := store.List()
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, types.ModID("alpha"), mods[0].ID)
	assert.Equal(t, types.ModID("zeta"), mods[1].ID)
}
