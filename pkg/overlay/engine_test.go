// pkg/overlay/engine_test.go
// TEST TYPE: Integration Test
// DEPENDENCIES: Real filesystem (rename/link semantics), real ledger service
// PURPOSE: Test deploy/undeploy round trips, displacement, rollback and recovery

package overlay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmmerrors "github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/filesystem"
	"github.com/tmm-manager/tmm/pkg/ledger"
	"github.com/tmm-manager/tmm/pkg/overlay"
	"github.com/tmm-manager/tmm/pkg/paths"
	"github.com/tmm-manager/tmm/pkg/testutil"
	"github.com/tmm-manager/tmm/pkg/types"
)

type env struct {
	fs     types.FS
	game   *types.Game
	ledger *ledger.Service
	engine *overlay.Engine
}

func setup(t *testing.T) *env {
	t.Helper()

	tempDir := t.TempDir()
	t.Setenv("TMM_CONFIG_DIR", filepath.Join(tempDir, "config"))
	t.Setenv("TMM_DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("TMM_STATE_DIR", filepath.Join(tempDir, "state"))

	p, err := paths.New()
	require.NoError(t, err)

	fs := filesystem.NewOS()
	led := ledger.NewService(p)
	return &env{
		fs:     fs,
		game:   testutil.NewGame(t, fs),
		ledger: led,
		engine: overlay.New(fs, led, 4),
	}
}

// installMod writes a mod tree directly into the game's mods dir and
// returns its ID.
func (e *env) installMod(t *testing.T, id string, files map[string]string) types.ModID {
	t.Helper()
	testutil.WriteTree(t, e.fs, filepath.Join(e.game.ModsDir(), id), files)
	return types.ModID(id)
}

func TestDeployUndeployRoundTrip(t *testing.T) {
	e := setup(t)

	testutil.WriteTree(t, e.fs, e.game.InstallPath, map[string]string{
		"game.exe":      "binary",
		"data/base.pak": "base assets",
		"config/x.cfg":  "original settings",
	})
	before := testutil.ReadTree(t, e.fs, e.game.InstallPath)

	alpha := e.installMod(t, "alpha", map[string]string{
		"config/x.cfg":    "alpha settings",
		"data/alpha.pak":  "alpha assets",
		"textures/hi.dds": "alpha texture",
	})

	tree := types.NewVirtualTree()
	tree.Put("config/x.cfg", "config/x.cfg", alpha)
	tree.Put("data/alpha.pak", "data/alpha.pak", alpha)
	tree.Put("textures/hi.dds", "textures/hi.dds", alpha)

	res, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Placed)
	assert.Equal(t, 1, res.Displaced)
	assert.NotEmpty(t, res.BatchID)

	after := testutil.ReadTree(t, e.fs, e.game.InstallPath)
	assert.Equal(t, "alpha settings", after["config/x.cfg"])
	assert.Equal(t, "alpha assets", after["data/alpha.pak"])
	assert.Equal(t, "alpha texture", after["textures/hi.dds"])
	assert.Equal(t, "base assets", after["data/base.pak"])

	deployed, err := e.engine.IsDeployed(e.game)
	require.NoError(t, err)
	assert.True(t, deployed)

	undo, err := e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	assert.False(t, undo.NoOp)
	assert.Equal(t, 3, undo.Removed)
	assert.Equal(t, 1, undo.Restored)

	restored := testutil.ReadTree(t, e.fs, e.game.InstallPath)
	assert.Equal(t, before, restored, "install dir must be byte-identical after undeploy")

	// The textures dir was created by the deploy and must be gone.
	_, err = e.fs.Stat(filepath.Join(e.game.InstallPath, "textures"))
	assert.True(t, os.IsNotExist(err))
}

func TestUndeployCleanDirIsNoOp(t *testing.T) {
	e := setup(t)

	res, err := e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Zero(t, res.Removed)
	assert.Zero(t, res.Restored)
}

func TestUndeployIsIdempotent(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"a.txt": "a"})
	tree := types.NewVirtualTree()
	tree.Put("a.txt", "a.txt", alpha)

	_, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.NoError(t, err)

	_, err = e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)

	res, err := e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
}

func TestDeployOverExistingDeploymentFails(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"a.txt": "a"})
	tree := types.NewVirtualTree()
	tree.Put("a.txt", "a.txt", alpha)

	_, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.NoError(t, err)
	snapshot := testutil.ReadTree(t, e.fs, e.game.InstallPath)

	_, err = e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrAlreadyDeployed))

	// The refused deploy must not have touched the install dir.
	assert.Equal(t, snapshot, testutil.ReadTree(t, e.fs, e.game.InstallPath))
}

func TestConflictWinnerDeploysAndOriginalRestores(t *testing.T) {
	e := setup(t)

	testutil.WriteTree(t, e.fs, e.game.InstallPath, map[string]string{
		"x.cfg": "vanilla",
	})

	a := e.installMod(t, "mod-a", map[string]string{"x.cfg": "from A"})
	b := e.installMod(t, "mod-b", map[string]string{"x.cfg": "from B"})

	// B is later in the load order, so B wins the conflict.
	tree := types.NewVirtualTree()
	tree.Put("x.cfg", "x.cfg", a)
	tree.Put("x.cfg", "x.cfg", b)

	res, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Placed)
	assert.Equal(t, 1, res.Displaced)

	data, err := e.fs.ReadFile(filepath.Join(e.game.InstallPath, "x.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "from B", string(data))

	_, err = e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)

	data, err = e.fs.ReadFile(filepath.Join(e.game.InstallPath, "x.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "vanilla", string(data))
}

func TestDeployFailureRollsBackAllOperations(t *testing.T) {
	e := setup(t)

	testutil.WriteTree(t, e.fs, e.game.InstallPath, map[string]string{
		"keep.txt": "untouched",
		"c.txt":    "original c",
	})
	before := testutil.ReadTree(t, e.fs, e.game.InstallPath)

	alpha := e.installMod(t, "alpha", map[string]string{
		"a.txt": "a", "b.txt": "b", "c.txt": "c", "d.txt": "d", "e.txt": "e",
	})

	tree := types.NewVirtualTree()
	for _, f := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		tree.Put(f, f, alpha)
	}

	ffs := testutil.NewFaultFS(e.fs)
	ffs.FailWrite(filepath.Join(e.game.InstallPath, "d.txt"), errors.New("disk full"))
	// Serial engine so the failure point is deterministic.
	engine := overlay.New(ffs, e.ledger, 1)

	_, err := engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrDeployPartial))

	// Rollback must restore the pristine state, including the
	// displaced c.txt, and clear the ledger.
	assert.Equal(t, before, testutil.ReadTree(t, e.fs, e.game.InstallPath))

	batch, err := e.ledger.Load(e.game.ID)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestDeployFailureRemovesCreatedDirs(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{
		"newdir/a.txt": "a",
	})

	tree := types.NewVirtualTree()
	tree.Put("newdir/a.txt", "newdir/a.txt", alpha)

	// The failing write is the very operation that created newdir, so
	// there is no applied task whose reversal would prune it.
	ffs := testutil.NewFaultFS(e.fs)
	ffs.FailWrite(filepath.Join(e.game.InstallPath, "newdir", "a.txt"), errors.New("disk full"))
	engine := overlay.New(ffs, e.ledger, 1)

	_, err := engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrDeployPartial))

	_, statErr := e.fs.Stat(filepath.Join(e.game.InstallPath, "newdir"))
	assert.True(t, os.IsNotExist(statErr), "created directory must not survive a rolled-back deploy")

	batch, err := e.ledger.Load(e.game.ID)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestUnconfirmedLedgerRequiresRecovery(t *testing.T) {
	e := setup(t)

	testutil.WriteTree(t, e.fs, e.game.InstallPath, map[string]string{
		"x.cfg": "vanilla",
	})

	alpha := e.installMod(t, "alpha", map[string]string{"x.cfg": "modded", "new.txt": "n"})
	tree := types.NewVirtualTree()
	tree.Put("x.cfg", "x.cfg", alpha)
	tree.Put("new.txt", "new.txt", alpha)

	// Simulate a crash mid-deploy: the ledger holds the planned
	// batch, the original is displaced, one file is placed, and the
	// confirmation never happened.
	require.NoError(t, e.fs.MkdirAll(e.game.BackupDir(), 0o755))
	require.NoError(t, e.fs.Rename(
		filepath.Join(e.game.InstallPath, "x.cfg"),
		filepath.Join(e.game.BackupDir(), "x.cfg")))
	require.NoError(t, e.fs.WriteFile(
		filepath.Join(e.game.InstallPath, "x.cfg"), []byte("modded"), 0o644))

	require.NoError(t, e.ledger.Record(&ledger.Batch{
		BatchID:   "crashed-batch",
		GameID:    e.game.ID,
		TargetDir: e.game.InstallPath,
		Technique: types.TechniqueCopy,
		Mods:      []types.ModID{alpha},
		Operations: []types.DeployedOperation{
			{Kind: types.OpBackupOriginal, ModID: alpha, RelPath: "x.cfg",
				BackupPath: filepath.Join(e.game.BackupDir(), "x.cfg")},
			{Kind: types.OpPlace, ModID: alpha, RelPath: "x.cfg", Technique: types.TechniqueCopy},
			{Kind: types.OpPlace, ModID: alpha, RelPath: "new.txt", Technique: types.TechniqueCopy},
		},
	}))

	needs, err := e.engine.NeedsRecovery(e.game)
	require.NoError(t, err)
	assert.True(t, needs)

	// A fresh deploy is refused until the interruption is recovered.
	_, err = e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrAlreadyDeployed))
	details := tmmerrors.GetErrorDetails(err)
	assert.Equal(t, true, details["needs_recovery"])

	// Undeploy recovers: never-placed files are tolerated, the
	// original comes back, the ledger is cleared.
	res, err := e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	assert.False(t, res.NoOp)

	data, err := e.fs.ReadFile(filepath.Join(e.game.InstallPath, "x.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "vanilla", string(data))

	needs, err = e.engine.NeedsRecovery(e.game)
	require.NoError(t, err)
	assert.False(t, needs)

	// With the ledger clean the deploy goes through.
	_, err = e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.NoError(t, err)
}

func TestDeployHardlinkTechnique(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"data/a.pak": "assets"})
	tree := types.NewVirtualTree()
	tree.Put("data/a.pak", "data/a.pak", alpha)

	res, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueHardlink)
	require.NoError(t, err)
	assert.Equal(t, types.TechniqueHardlink, res.Technique)

	// Hardlinked content reads identically to the source.
	data, err := e.fs.ReadFile(filepath.Join(e.game.InstallPath, "data", "a.pak"))
	require.NoError(t, err)
	assert.Equal(t, "assets", string(data))

	_, err = e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	_, err = e.fs.Stat(filepath.Join(e.game.InstallPath, "data"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeploySymlinkTechnique(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"scripts/init.lua": "print(1)"})
	tree := types.NewVirtualTree()
	tree.Put("scripts/init.lua", "scripts/init.lua", alpha)

	_, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueSymlink)
	require.NoError(t, err)

	target := filepath.Join(e.game.InstallPath, "scripts", "init.lua")
	linkDest, err := e.fs.Readlink(target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.game.ModsDir(), "alpha", "scripts", "init.lua"), linkDest)

	_, err = e.engine.Undeploy(context.Background(), e.game)
	require.NoError(t, err)
	_, err = e.fs.Lstat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestDeployInvalidTechnique(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"a.txt": "a"})
	tree := types.NewVirtualTree()
	tree.Put("a.txt", "a.txt", alpha)

	_, err := e.engine.Deploy(context.Background(), tree, e.game, types.Technique("junction"))
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrInvalidInput))
}

func TestDeployCancelledContext(t *testing.T) {
	e := setup(t)

	alpha := e.installMod(t, "alpha", map[string]string{"a.txt": "a", "b.txt": "b"})
	tree := types.NewVirtualTree()
	tree.Put("a.txt", "a.txt", alpha)
	tree.Put("b.txt", "b.txt", alpha)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.engine.Deploy(ctx, tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrDeployPartial))

	// Nothing placed, ledger clean.
	assert.Empty(t, testutil.ReadTree(t, e.fs, e.game.InstallPath))
	batch, err := e.ledger.Load(e.game.ID)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestRedeploySwapsContent(t *testing.T) {
	e := setup(t)

	a := e.installMod(t, "mod-a", map[string]string{"x.cfg": "from A"})
	b := e.installMod(t, "mod-b", map[string]string{"x.cfg": "from B"})

	treeA := types.NewVirtualTree()
	treeA.Put("x.cfg", "x.cfg", a)

	_, err := e.engine.Deploy(context.Background(), treeA, e.game, types.TechniqueCopy)
	require.NoError(t, err)

	treeB := types.NewVirtualTree()
	treeB.Put("x.cfg", "x.cfg", b)

	res, err := e.engine.Redeploy(context.Background(), treeB, e.game, types.TechniqueCopy)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Placed)

	data, err := e.fs.ReadFile(filepath.Join(e.game.InstallPath, "x.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "from B", string(data))
}

func TestDeployMissingInstallDir(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.fs.RemoveAll(e.game.InstallPath))

	alpha := e.installMod(t, "alpha", map[string]string{"a.txt": "a"})
	tree := types.NewVirtualTree()
	tree.Put("a.txt", "a.txt", alpha)

	_, err := e.engine.Deploy(context.Background(), tree, e.game, types.TechniqueCopy)
	require.Error(t, err)
	assert.True(t, tmmerrors.IsErrorCode(err, tmmerrors.ErrFileAccess))
}
