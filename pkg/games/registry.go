// Package games manages the registry of game profiles. Each
// registered game gets one human-inspectable JSON record under the
// tmm config dir plus its profile and work directories (mods,
// downloads, backup scratch space).
package games

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/paths"
	"github.com/tmm-manager/tmm/pkg/types"
	"github.com/tmm-manager/tmm/pkg/utils"
)

// Registry manages game profile records.
type Registry struct {
	fs    types.FS
	paths paths.Paths
}

// NewRegistry creates a registry over the given filesystem and paths.
func NewRegistry(fs types.FS, p paths.Paths) *Registry {
	return &Registry{fs: fs, paths: p}
}

// AddOptions describes a game to register.
type AddOptions struct {
	Name        string
	InstallPath string
	// AppID is the optional Steam application id, recorded for
	// launcher integration.
	AppID uint32
}

// Add registers a new game and creates its profile directory scheme.
func (r *Registry) Add(opts AddOptions) (*types.Game, error) {
	logger := logging.GetLogger("games.registry")

	if opts.Name == "" {
		return nil, errors.New(errors.ErrInvalidInput, "game name is required")
	}
	if opts.InstallPath == "" {
		return nil, errors.New(errors.ErrInvalidInput, "game install path is required")
	}

	info, err := r.fs.Stat(opts.InstallPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"game install path %s is not accessible", opts.InstallPath)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"game install path %s is not a directory", opts.InstallPath)
	}

	id := utils.Slugify(opts.Name)
	recordPath := r.paths.GameRecordPath(id)
	if _, err := r.fs.Stat(recordPath); err == nil {
		return nil, errors.Newf(errors.ErrGameDuplicate, "game %q is already registered", id)
	}

	game := &types.Game{
		ID:          id,
		Name:        opts.Name,
		AppID:       opts.AppID,
		InstallPath: opts.InstallPath,
		ProfilePath: r.paths.GameProfileDir(id),
		WorkPath:    r.paths.GameWorkDir(id),
		AddedAt:     time.Now().UTC(),
	}

	if err := r.makeGameDirectories(game); err != nil {
		return nil, err
	}
	if err := r.writeRecord(game); err != nil {
		return nil, err
	}

	logger.Info().Str("game", id).Str("install", game.InstallPath).Msg("Game registered")
	return game, nil
}

// Get loads one game record.
func (r *Registry) Get(id string) (*types.Game, error) {
	data, err := r.fs.ReadFile(r.paths.GameRecordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrGameUnknown, "game %q is not registered", id)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read game record for %q", id)
	}

	var game types.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "game record for %q is malformed", id)
	}
	return &game, nil
}

// List returns all registered games sorted by id.
func (r *Registry) List() ([]*types.Game, error) {
	entries, err := r.fs.ReadDir(r.paths.GamesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileAccess, "failed to read games directory")
	}

	logger := logging.GetLogger("games.registry")
	var games []*types.Game
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) < 6 || name[len(name)-5:] != ".json" {
			continue
		}
		game, err := r.Get(name[:len(name)-5])
		if err != nil {
			logger.Warn().Err(err).
				Str("record", name).Msg("Skipping unreadable game record")
			continue
		}
		games = append(games, game)
	}

	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

// Remove deletes a game's record. When purgeProfile is set its
// profile and work directories (installed mods included) are removed
// as well; the game's own install directory is never touched.
func (r *Registry) Remove(id string, purgeProfile bool) error {
	game, err := r.Get(id)
	if err != nil {
		return err
	}

	if err := r.fs.Remove(r.paths.GameRecordPath(id)); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove game record for %q", id)
	}

	if purgeProfile {
		if err := r.fs.RemoveAll(game.ProfilePath); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove profile for %q", id)
		}
		if err := r.fs.RemoveAll(game.WorkPath); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove work dir for %q", id)
		}
	}

	logger := logging.GetLogger("games.registry")
	logger.Info().
		Str("game", id).Bool("purged", purgeProfile).Msg("Game removed")
	return nil
}

// makeGameDirectories creates the per-game directory scheme: the
// profile dir with mods/ and downloads/, and the work dir.
func (r *Registry) makeGameDirectories(game *types.Game) error {
	for _, dir := range []string{
		game.ProfilePath,
		game.ModsDir(),
		game.DownloadsDir(),
		game.WorkPath,
	} {
		if err := r.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dir)
		}
	}
	return nil
}

func (r *Registry) writeRecord(game *types.Game) error {
	if err := r.fs.MkdirAll(r.paths.GamesDir(), 0755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create games directory")
	}

	data, err := json.MarshalIndent(game, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode game record")
	}
	if err := r.fs.WriteFile(r.paths.GameRecordPath(game.ID), data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "failed to write game record for %q", game.ID)
	}
	return nil
}
