package modstore

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/types"
	"github.com/tmm-manager/tmm/pkg/utils"
)

// MetadataFile is the per-mod metadata file written at the mod root.
// It is excluded from the mod's file listing.
const MetadataFile = ".tmm.toml"

// DeploymentChecker reports whether a mod is part of an active
// deployment. The ledger service implements it; the indirection
// keeps the store free of ledger internals.
type DeploymentChecker interface {
	IsModDeployed(gameID string, id types.ModID) (bool, error)
}

// Store manages the installed mods of one game profile.
type Store struct {
	fs      types.FS
	game    *types.Game
	checker DeploymentChecker
}

// New creates a mod store for the given game. checker may be nil,
// in which case Uninstall skips the in-use check.
func New(fsys types.FS, game *types.Game, checker DeploymentChecker) *Store {
	return &Store{fs: fsys, game: game, checker: checker}
}

type modMetadata struct {
	ID          types.ModID `toml:"id"`
	Name        string      `toml:"name"`
	InstalledAt time.Time   `toml:"installed_at"`
}

// Install registers a new mod whose files already reside at
// extractedRoot (produced by the external archive layer). The tree
// is validated, moved under the profile's mods directory and
// recorded with metadata. The mod id is the slug of the display
// name.
func (s *Store) Install(name, extractedRoot string) (*types.Mod, error) {
	logger := logging.GetLogger("modstore")

	id := types.ModID(utils.Slugify(name))
	modRoot := s.modRoot(id)

	if _, err := s.fs.Stat(modRoot); err == nil {
		return nil, errors.Newf(errors.ErrModDuplicate, "mod %q is already installed", id).
			WithDetail("mod", string(id))
	}

	if err := s.validateTree(extractedRoot); err != nil {
		return nil, err
	}

	if err := s.fs.MkdirAll(s.game.ModsDir(), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrDirCreate, "failed to create mods directory")
	}

	// Prefer a rename; fall back to a tree copy when the extracted
	// root lives on another filesystem.
	if err := s.fs.Rename(extractedRoot, modRoot); err != nil {
		if copyErr := s.copyTree(extractedRoot, modRoot); copyErr != nil {
			_ = s.fs.RemoveAll(modRoot)
			return nil, errors.Wrapf(copyErr, errors.ErrFileCreate,
				"failed to import mod tree from %s", extractedRoot)
		}
		if err := s.fs.RemoveAll(extractedRoot); err != nil {
			logger.Warn().Err(err).Str("path", extractedRoot).
				Msg("Could not remove source tree after import")
		}
	}

	mod := &types.Mod{
		ID:          id,
		Name:        name,
		Root:        modRoot,
		InstalledAt: time.Now().UTC(),
	}
	if err := s.writeMetadata(mod); err != nil {
		// Hand the tree back instead of destroying the caller's only
		// copy of it.
		if mvErr := s.fs.Rename(modRoot, extractedRoot); mvErr != nil {
			logger.Warn().Err(mvErr).Str("path", modRoot).
				Msg("Could not return imported tree after metadata failure")
		}
		return nil, err
	}

	logger.Info().Str("mod", string(id)).Str("root", modRoot).Msg("Mod installed")
	return mod, nil
}

// Uninstall removes a mod's files. It fails with ErrModInUse when
// the mod is part of an active deployment and force is false; the
// commands layer undeploys first when forcing.
func (s *Store) Uninstall(id types.ModID, force bool) error {
	modRoot := s.modRoot(id)
	if _, err := s.fs.Stat(modRoot); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrModUnknown, "mod %q is not installed", id)
		}
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat mod %q", id)
	}

	if s.checker != nil && !force {
		deployed, err := s.checker.IsModDeployed(s.game.ID, id)
		if err != nil {
			return err
		}
		if deployed {
			return errors.Newf(errors.ErrModInUse,
				"mod %q is deployed; undeploy first or pass force", id).
				WithDetail("mod", string(id)).
				WithDetail("game", s.game.ID)
		}
	}

	if err := s.fs.RemoveAll(modRoot); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove mod %q", id)
	}

	logger := logging.GetLogger("modstore")
	logger.Info().Str("mod", string(id)).Msg("Mod uninstalled")
	return nil
}

// Get loads one installed mod's metadata.
func (s *Store) Get(id types.ModID) (*types.Mod, error) {
	modRoot := s.modRoot(id)
	data, err := s.fs.ReadFile(filepath.Join(modRoot, MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrModUnknown, "mod %q is not installed", id)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read metadata for mod %q", id)
	}

	var meta modMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "metadata for mod %q is malformed", id)
	}

	return &types.Mod{
		ID:          meta.ID,
		Name:        meta.Name,
		Root:        modRoot,
		InstalledAt: meta.InstalledAt,
	}, nil
}

// Has reports whether a mod is installed.
func (s *Store) Has(id types.ModID) bool {
	_, err := s.fs.Stat(s.modRoot(id))
	return err == nil
}

// List returns all installed mods sorted by id.
func (s *Store) List() ([]*types.Mod, error) {
	entries, err := s.fs.ReadDir(s.game.ModsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileAccess, "failed to read mods directory")
	}

	logger := logging.GetLogger("modstore")
	var mods []*types.Mod
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mod, err := s.Get(types.ModID(entry.Name()))
		if err != nil {
			logger.Warn().Err(err).
				Str("dir", entry.Name()).Msg("Skipping mod directory without valid metadata")
			continue
		}
		mods = append(mods, mod)
	}

	sort.Slice(mods, func(i, j int) bool { return mods[i].ID < mods[j].ID })
	return mods, nil
}

// ListFiles returns the mod's relative file paths in lexicographic
// order, slash-separated. Directories are implicit; the metadata
// file is excluded. The ordering is stable so resolution stays
// reproducible.
func (s *Store) ListFiles(id types.ModID) ([]string, error) {
	modRoot := s.modRoot(id)
	if _, err := s.fs.Stat(modRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrModUnknown, "mod %q is not installed", id)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat mod %q", id)
	}

	var files []string
	err := s.walk(modRoot, "", func(rel string, entry fs.DirEntry) error {
		if rel == MetadataFile {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to list files of mod %q", id)
	}

	sort.Strings(files)
	return files, nil
}

func (s *Store) modRoot(id types.ModID) string {
	return filepath.Join(s.game.ModsDir(), string(id))
}

// walk visits every regular file below root, calling fn with the
// slash-separated path relative to root.
func (s *Store) walk(root, rel string, fn func(rel string, entry fs.DirEntry) error) error {
	dir := root
	if rel != "" {
		dir = filepath.Join(root, filepath.FromSlash(rel))
	}
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childRel := entry.Name()
		if rel != "" {
			childRel = path.Join(rel, entry.Name())
		}
		if entry.IsDir() {
			if err := s.walk(root, childRel, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(childRel, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeMetadata(mod *types.Mod) error {
	data, err := toml.Marshal(modMetadata{
		ID:          mod.ID,
		Name:        mod.Name,
		InstalledAt: mod.InstalledAt,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode mod metadata")
	}
	if err := s.fs.WriteFile(filepath.Join(mod.Root, MetadataFile), data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "failed to write metadata for mod %q", mod.ID)
	}
	return nil
}

func (s *Store) copyTree(src, dst string) error {
	if err := s.fs.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := s.copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		data, err := s.fs.ReadFile(srcPath)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := s.fs.WriteFile(dstPath, data, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}
