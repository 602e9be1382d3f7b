package commands

import (
	"github.com/tmm-manager/tmm/pkg/config"
	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/filesystem"
	"github.com/tmm-manager/tmm/pkg/games"
	"github.com/tmm-manager/tmm/pkg/ledger"
	"github.com/tmm-manager/tmm/pkg/loadorder"
	"github.com/tmm-manager/tmm/pkg/modstore"
	"github.com/tmm-manager/tmm/pkg/overlay"
	"github.com/tmm-manager/tmm/pkg/paths"
	"github.com/tmm-manager/tmm/pkg/resolver"
	"github.com/tmm-manager/tmm/pkg/types"
)

// App holds the shared wiring every command needs. Construct one per
// process with NewApp, or assemble one by hand in tests.
type App struct {
	FS     types.FS
	Paths  paths.Paths
	Config *config.Config
	Games  *games.Registry
	Ledger *ledger.Service
	Engine *overlay.Engine
}

// NewApp wires an App against the real filesystem, XDG paths and the
// layered configuration.
func NewApp() (*App, error) {
	p, err := paths.New()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(p.ConfigFilePath())
	if err != nil {
		return nil, err
	}

	fs := filesystem.NewOS()
	led := ledger.NewService(p)
	return &App{
		FS:     fs,
		Paths:  p,
		Config: cfg,
		Games:  games.NewRegistry(fs, p),
		Ledger: led,
		Engine: overlay.New(fs, led, cfg.Deploy.Workers),
	}, nil
}

// game resolves a registered game by ID.
func (a *App) game(gameID string) (*types.Game, error) {
	return a.Games.Get(gameID)
}

// store opens the mod store for a game, backed by the ledger for
// in-use checks.
func (a *App) store(game *types.Game) *modstore.Store {
	return modstore.New(a.FS, game, a.Ledger)
}

// order loads the game's load order, dropping dangling entries.
func (a *App) order(game *types.Game) (*loadorder.Order, error) {
	return loadorder.Load(a.FS, game, a.store(game))
}

// resolveTree computes the virtual tree for the game's current load
// order under the configured resolver options.
func (a *App) resolveTree(game *types.Game) (*types.VirtualTree, error) {
	order, err := a.order(game)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(order.Snapshot(), a.store(game), resolver.Options{
		CaseFold: a.Config.Resolver.CaseFold,
	})
}

// technique picks the per-call override or the configured default.
func (a *App) technique(override string) (types.Technique, error) {
	s := override
	if s == "" {
		s = a.Config.Deploy.Technique
	}
	if !types.ValidTechnique(s) {
		return "", errors.Newf(errors.ErrInvalidInput, "unknown deploy technique %q", s)
	}
	return types.Technique(s), nil
}
