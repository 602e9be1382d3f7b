package overlay

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/ledger"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// Ledger is the slice of the ledger service the engine needs.
type Ledger interface {
	Record(batch *ledger.Batch) error
	Confirm(gameID string) error
	Load(gameID string) (*ledger.Batch, error)
	Clear(gameID string) error
}

// Engine applies and reverses overlay deployments. One engine can
// serve many games; calls against the same game directory are
// mutually exclusive and concurrent calls are refused rather than
// queued.
type Engine struct {
	fs      types.FS
	ledger  Ledger
	workers int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an overlay engine. workers bounds the concurrent file
// operations within one deploy batch.
func New(fsys types.FS, led Ledger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		fs:      fsys,
		ledger:  led,
		workers: workers,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(gameID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.locks[gameID]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.locks[gameID] = l
	return l
}

// Deploy materializes the virtual tree into the game's install
// directory. The directory must be clean: deploying over an
// existing deployment fails with ErrAlreadyDeployed, and an
// interrupted earlier deploy must be recovered (undeployed) first.
func (e *Engine) Deploy(ctx context.Context, tree *types.VirtualTree, game *types.Game, technique types.Technique) (*types.DeployResult, error) {
	lock := e.lockFor(game.ID)
	if !lock.TryLock() {
		return nil, errors.Newf(errors.ErrDeployBusy,
			"another overlay operation is running for game %q", game.ID)
	}
	defer lock.Unlock()

	return e.deployLocked(ctx, tree, game, technique)
}

// Undeploy reverses the recorded deployment for the game, restoring
// the install directory to its pristine state. A clean directory is
// a successful no-op; calling undeploy twice is the same as once.
func (e *Engine) Undeploy(ctx context.Context, game *types.Game) (*types.UndeployResult, error) {
	lock := e.lockFor(game.ID)
	if !lock.TryLock() {
		return nil, errors.Newf(errors.ErrDeployBusy,
			"another overlay operation is running for game %q", game.ID)
	}
	defer lock.Unlock()

	return e.undeployLocked(ctx, game)
}

// Redeploy is undeploy followed by deploy under one lock, so callers
// observe it as a single transition.
func (e *Engine) Redeploy(ctx context.Context, tree *types.VirtualTree, game *types.Game, technique types.Technique) (*types.DeployResult, error) {
	lock := e.lockFor(game.ID)
	if !lock.TryLock() {
		return nil, errors.Newf(errors.ErrDeployBusy,
			"another overlay operation is running for game %q", game.ID)
	}
	defer lock.Unlock()

	if _, err := e.undeployLocked(ctx, game); err != nil {
		return nil, err
	}
	return e.deployLocked(ctx, tree, game, technique)
}

// Plan computes the operation batch a Deploy of tree would apply,
// without touching the game directory or the ledger.
func (e *Engine) Plan(tree *types.VirtualTree, game *types.Game, technique types.Technique) (*types.DeployResult, error) {
	plan, err := e.plan(tree, game, technique)
	if err != nil {
		return nil, err
	}
	return &types.DeployResult{
		GameID:     game.ID,
		Technique:  technique,
		Operations: plan.operations(),
		Placed:     len(plan.tasks) - plan.displaced,
		Displaced:  plan.displaced,
		DryRun:     true,
	}, nil
}

// NeedsRecovery reports whether an interrupted deploy left an
// unconfirmed ledger for the game.
func (e *Engine) NeedsRecovery(game *types.Game) (bool, error) {
	batch, err := e.ledger.Load(game.ID)
	if err != nil {
		return false, err
	}
	return batch != nil && !batch.Confirmed, nil
}

// IsDeployed reports whether the game has a confirmed deployment.
func (e *Engine) IsDeployed(game *types.Game) (bool, error) {
	batch, err := e.ledger.Load(game.ID)
	if err != nil {
		return false, err
	}
	return batch != nil && batch.Confirmed, nil
}

func (e *Engine) deployLocked(ctx context.Context, tree *types.VirtualTree, game *types.Game, technique types.Technique) (*types.DeployResult, error) {
	logger := logging.GetLogger("overlay.engine")
	done := logging.LogOperationStart(logger, "deploy")
	defer done()

	existing, err := e.ledger.Load(game.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Confirmed {
			return nil, errors.Newf(errors.ErrAlreadyDeployed,
				"game %q already has a deployed overlay; undeploy or redeploy first", game.ID)
		}
		return nil, errors.Newf(errors.ErrAlreadyDeployed,
			"game %q has an interrupted deployment needing recovery", game.ID).
			WithDetail("needs_recovery", true)
	}

	plan, err := e.plan(tree, game, technique)
	if err != nil {
		return nil, err
	}

	batch := &ledger.Batch{
		BatchID:    uuid.NewString(),
		GameID:     game.ID,
		TargetDir:  game.InstallPath,
		Technique:  technique,
		CreatedAt:  time.Now().UTC(),
		Mods:       plan.mods,
		Operations: plan.operations(),
	}

	// Write-ahead: the planned batch is durable before the first
	// file operation, so a crash can never leave unrecorded changes.
	if err := e.ledger.Record(batch); err != nil {
		return nil, err
	}

	applied, execErr := e.runBatch(ctx, plan)
	if execErr != nil {
		logger.Warn().Err(execErr).Str("game", game.ID).
			Int("applied", len(applied)).Msg("Deploy failed, rolling back batch")
		e.rollback(applied, plan.tasks)
		if err := e.ledger.Clear(game.ID); err != nil {
			logger.Error().Err(err).Str("game", game.ID).
				Msg("Could not clear ledger after rollback")
		}
		return nil, errors.Wrapf(execErr, errors.ErrDeployPartial,
			"deploy failed after %d of %d operations; batch rolled back",
			len(applied), len(plan.tasks))
	}

	// Re-record with the directories each operation created, then
	// confirm. Both rewrites are atomic replacements.
	batch.Operations = plan.operations()
	if err := e.ledger.Record(batch); err != nil {
		e.rollback(applied, plan.tasks)
		_ = e.ledger.Clear(game.ID)
		return nil, err
	}
	if err := e.ledger.Confirm(game.ID); err != nil {
		e.rollback(applied, plan.tasks)
		_ = e.ledger.Clear(game.ID)
		return nil, err
	}

	result := &types.DeployResult{
		BatchID:    batch.BatchID,
		GameID:     game.ID,
		Technique:  technique,
		Operations: batch.Operations,
		Placed:     len(plan.tasks) - plan.displaced,
		Displaced:  plan.displaced,
	}
	logger.Info().Str("game", game.ID).
		Int("placed", result.Placed).
		Int("displaced", result.Displaced).
		Str("technique", string(technique)).
		Msg("Overlay deployed")
	return result, nil
}

func (e *Engine) undeployLocked(ctx context.Context, game *types.Game) (*types.UndeployResult, error) {
	logger := logging.GetLogger("overlay.engine")
	done := logging.LogOperationStart(logger, "undeploy")
	defer done()

	batch, err := e.ledger.Load(game.ID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return &types.UndeployResult{GameID: game.ID, NoOp: true}, nil
	}

	result := &types.UndeployResult{GameID: game.ID}

	// Reverse every recorded operation in strict reverse order.
	// Missing files are tolerated so that recovering an interrupted
	// deploy (where not every recorded operation ran) and repeated
	// undeploys behave identically.
	ops := batch.Operations
	for i := len(ops) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrDeployPartial,
				"undeploy cancelled; ledger retained for retry")
		}

		op := ops[i]
		target := filepath.Join(game.InstallPath, filepath.FromSlash(op.RelPath))

		switch op.Kind {
		case types.OpPlace:
			if err := e.removePlaced(target); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileAccess,
					"failed to remove overlay file %s", target)
			}
			result.Removed++
		case types.OpBackupOriginal:
			if err := e.restoreBackup(op.BackupPath, target); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileAccess,
					"failed to restore original %s", target)
			}
			result.Restored++
		default:
			logger.Warn().Str("kind", string(op.Kind)).Msg("Skipping unknown ledger operation")
		}
	}

	// Prune directories the deploy created, deepest first.
	pruneCreatedDirs(e.fs, ops)

	if err := e.ledger.Clear(game.ID); err != nil {
		return nil, err
	}

	logger.Info().Str("game", game.ID).
		Int("removed", result.Removed).
		Int("restored", result.Restored).
		Msg("Overlay undeployed")
	return result, nil
}
