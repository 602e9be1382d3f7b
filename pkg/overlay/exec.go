package overlay

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
)

// task is one planned file operation plus the state its execution
// produces (the topmost directory it had to create).
type task struct {
	op     types.DeployedOperation
	source string // absolute source path, empty for backups
	target string // absolute path inside the install dir

	createdDir string // set during execution
	applied    bool
}

// deployPlan is the fully resolved set of tasks for one batch.
type deployPlan struct {
	engine    *Engine
	game      *types.Game
	technique types.Technique
	tasks     []*task
	displaced int
	mods      []types.ModID

	// dirMu serializes directory creation so createdDir bookkeeping
	// stays consistent across workers.
	dirMu sync.Mutex
}

// plan walks the virtual tree in key order and produces the ordered
// operation list. A backup task for a displaced original always
// precedes the place task for the same path.
func (e *Engine) plan(tree *types.VirtualTree, game *types.Game, technique types.Technique) (*deployPlan, error) {
	if !types.ValidTechnique(string(technique)) {
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown deploy technique %q", technique)
	}
	if _, err := e.fs.Stat(game.InstallPath); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"game install directory %s is not accessible", game.InstallPath)
	}

	p := &deployPlan{engine: e, game: game, technique: technique}

	seen := make(map[types.ModID]bool)
	for _, key := range tree.Keys() {
		entry := tree.Get(key)
		rel := filepath.FromSlash(entry.Path)
		target := filepath.Join(game.InstallPath, rel)
		source := filepath.Join(game.ModsDir(), string(entry.Winner), rel)

		if _, err := e.fs.Lstat(target); err == nil {
			p.tasks = append(p.tasks, &task{
				op: types.DeployedOperation{
					Kind:       types.OpBackupOriginal,
					ModID:      entry.Winner,
					RelPath:    entry.Path,
					BackupPath: filepath.Join(game.BackupDir(), rel),
				},
				target: target,
			})
			p.displaced++
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.ErrFileAccess,
				"cannot stat deploy target %s", target)
		}

		p.tasks = append(p.tasks, &task{
			op: types.DeployedOperation{
				Kind:      types.OpPlace,
				ModID:     entry.Winner,
				RelPath:   entry.Path,
				Technique: technique,
			},
			source: source,
			target: target,
		})

		if !seen[entry.Winner] {
			seen[entry.Winner] = true
			p.mods = append(p.mods, entry.Winner)
		}
	}
	return p, nil
}

// operations renders the plan as ledger operations, folding in any
// createdDir state the execution recorded.
func (p *deployPlan) operations() []types.DeployedOperation {
	ops := make([]types.DeployedOperation, len(p.tasks))
	for i, t := range p.tasks {
		op := t.op
		op.CreatedDir = t.createdDir
		ops[i] = op
	}
	return ops
}

// runBatch executes the plan on a bounded worker pool. Backup tasks
// run before their corresponding place task because tasks for the
// same path are adjacent and the pool preserves per-path ordering by
// grouping them into a single unit of work.
//
// On the first failure, remaining work is abandoned and the applied
// tasks are returned for the caller to roll back.
func (e *Engine) runBatch(ctx context.Context, p *deployPlan) ([]*task, error) {
	// Group tasks by target path so backup+place for the same file
	// execute sequentially on one worker.
	var groups [][]*task
	var cur []*task
	for _, t := range p.tasks {
		if len(cur) > 0 && cur[len(cur)-1].target != t.target {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, group := range groups {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}
		if err := ctx.Err(); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(group []*task) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, t := range group {
				if err := p.runTask(t); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(group)
	}
	wg.Wait()

	var applied []*task
	for _, t := range p.tasks {
		if t.applied {
			applied = append(applied, t)
		}
	}
	return applied, firstErr
}

func (p *deployPlan) runTask(t *task) error {
	switch t.op.Kind {
	case types.OpBackupOriginal:
		created, err := p.ensureDir(filepath.Dir(t.op.BackupPath), p.game.BackupDir())
		if err != nil {
			return err
		}
		t.createdDir = created
		if err := p.engine.fs.Rename(t.target, t.op.BackupPath); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess,
				"failed to displace original %s", t.target)
		}
	case types.OpPlace:
		created, err := p.ensureDir(filepath.Dir(t.target), p.game.InstallPath)
		if err != nil {
			return err
		}
		t.createdDir = created
		if err := p.engine.placeFile(t.source, t.target, p.technique); err != nil {
			return err
		}
	}
	t.applied = true
	return nil
}

// ensureDir creates dir and returns the topmost ancestor under root
// that did not exist before, or "" when the whole chain existed.
func (p *deployPlan) ensureDir(dir, root string) (string, error) {
	p.dirMu.Lock()
	defer p.dirMu.Unlock()

	if _, err := p.engine.fs.Stat(dir); err == nil {
		return "", nil
	}

	// Walk up from dir to root to find the first missing ancestor.
	topmost := ""
	for d := dir; strings.HasPrefix(d, root) && d != root; d = filepath.Dir(d) {
		if _, err := p.engine.fs.Stat(d); err == nil {
			break
		}
		topmost = d
	}

	if err := p.engine.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory %s", dir)
	}
	return topmost, nil
}

// placeFile materializes source at target with the given technique.
func (e *Engine) placeFile(source, target string, technique types.Technique) error {
	switch technique {
	case types.TechniqueSymlink:
		if err := e.fs.Symlink(source, target); err != nil {
			return errors.Wrapf(err, errors.ErrFileCreate, "failed to symlink %s", target)
		}
	case types.TechniqueHardlink:
		if err := e.fs.Link(source, target); err != nil {
			return errors.Wrapf(err, errors.ErrFileCreate, "failed to hardlink %s", target)
		}
	case types.TechniqueCopy:
		info, err := e.fs.Stat(source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "cannot read mod file %s", source)
		}
		data, err := e.fs.ReadFile(source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "cannot read mod file %s", source)
		}
		if err := e.fs.WriteFile(target, data, info.Mode().Perm()); err != nil {
			return errors.Wrapf(err, errors.ErrFileCreate, "failed to copy to %s", target)
		}
	default:
		return errors.Newf(errors.ErrInvalidInput, "unknown deploy technique %q", technique)
	}
	return nil
}

// rollback reverses applied tasks in reverse order, then prunes the
// directories the batch created. The prune pass walks every task in
// the plan, not just the applied ones: a task records its createdDir
// before placing the file, so the failing task itself may have left
// a fresh directory behind. Errors are logged and skipped; rollback
// is best effort by nature.
func (e *Engine) rollback(applied, all []*task) {
	logger := logging.GetLogger("overlay.rollback")
	for i := len(applied) - 1; i >= 0; i-- {
		t := applied[i]
		switch t.op.Kind {
		case types.OpPlace:
			if err := e.removePlaced(t.target); err != nil {
				logger.Warn().Err(err).Str("path", t.target).Msg("Rollback could not remove placed file")
			}
		case types.OpBackupOriginal:
			if err := e.restoreBackup(t.op.BackupPath, t.target); err != nil {
				logger.Warn().Err(err).Str("path", t.target).Msg("Rollback could not restore original")
			}
		}
	}

	dirs := make(map[string]bool)
	for _, t := range all {
		if t.createdDir != "" {
			dirs[t.createdDir] = true
		}
	}
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		removeEmptyTree(e.fs, d)
	}
}

func (e *Engine) removePlaced(target string) error {
	if err := e.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *Engine) restoreBackup(backupPath, target string) error {
	if _, err := e.fs.Lstat(backupPath); os.IsNotExist(err) {
		return nil
	}
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// The target may still hold the overlay file when recovering an
	// interrupted deploy whose undo order differs from record order.
	if err := e.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return e.fs.Rename(backupPath, target)
}

// pruneCreatedDirs removes directories recorded as created by the
// batch, deepest path first, leaving any that still hold files the
// deploy did not put there.
func pruneCreatedDirs(fsys types.FS, ops []types.DeployedOperation) {
	dirs := make(map[string]bool)
	for _, op := range ops {
		if op.CreatedDir != "" {
			dirs[op.CreatedDir] = true
		}
	}
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		removeEmptyTree(fsys, d)
	}
}

// removeEmptyTree removes dir and its subdirectories when they hold
// no files. Non-empty directories are left in place.
func removeEmptyTree(fsys types.FS, dir string) bool {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return false
	}
	empty := true
	for _, entry := range entries {
		if entry.IsDir() {
			if !removeEmptyTree(fsys, filepath.Join(dir, entry.Name())) {
				empty = false
			}
		} else {
			empty = false
		}
	}
	if !empty {
		return false
	}
	return fsys.Remove(dir) == nil
}
