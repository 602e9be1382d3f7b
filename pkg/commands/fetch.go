package commands

import (
	"context"
	"net/url"
	"path"
	"path/filepath"

	"github.com/tmm-manager/tmm/pkg/download"
	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/utils"
)

// FetchOptions defines the options for the Fetch command.
type FetchOptions struct {
	GameID string
	URL    string
	// FileName overrides the name derived from the URL path.
	FileName string
	// Events receives download progress callbacks; may be nil.
	Events *download.Events
}

// Fetch downloads a mod archive into the game's downloads directory.
// Extraction and installation are separate steps.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (*download.Result, error) {
	log := logging.GetLogger("commands.fetch")

	game, err := a.game(opts.GameID)
	if err != nil {
		return nil, err
	}

	name := opts.FileName
	if name == "" {
		u, err := url.Parse(opts.URL)
		if err != nil {
			return nil, errors.Newf(errors.ErrInvalidInput, "invalid download URL %q", opts.URL)
		}
		name = path.Base(u.Path)
		if name == "." || name == "/" || name == "" {
			name = utils.Slugify(u.Host)
		}
	}

	dest := filepath.Join(game.DownloadsDir(), filepath.Base(name))
	d := download.New(a.Config.Download)
	res, err := d.Download(ctx, opts.URL, dest, opts.Events)
	if err != nil {
		return nil, err
	}
	log.Info().Str("game", game.ID).Str("path", res.Path).
		Int64("bytes", res.Bytes).Msg("Archive fetched")
	return res, nil
}
