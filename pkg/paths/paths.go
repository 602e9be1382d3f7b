// Package paths provides centralized path handling for tmm.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/tmm-manager/tmm/pkg/errors"
)

// Environment variable names
const (
	// EnvTmmConfigDir overrides the XDG config directory for tmm
	EnvTmmConfigDir = "TMM_CONFIG_DIR"

	// EnvTmmDataDir overrides the XDG data directory for tmm
	EnvTmmDataDir = "TMM_DATA_DIR"

	// EnvTmmStateDir overrides the XDG state directory for tmm
	EnvTmmStateDir = "TMM_STATE_DIR"
)

// Default directories and files.
// These constants define tmm's internal directory structure and are
// NOT user-configurable; they must remain consistent across
// installations so existing profiles and ledgers stay addressable.
const (
	// TmmDirName is the directory name for tmm-specific files
	TmmDirName = "tmm"

	// GamesDirName holds one JSON record per registered game
	GamesDirName = "games"

	// ProfilesDirName holds per-game profile directories
	ProfilesDirName = "profiles"

	// WorkDirName holds per-game scratch space (displaced originals)
	WorkDirName = "work"

	// LedgersDirName holds one deployment ledger per game
	LedgersDirName = "ledgers"

	// ConfigFileName is the user configuration file
	ConfigFileName = "tmm.toml"

	// LogFileName is the name of the log file
	LogFileName = "tmm.log"
)

// Paths provides centralized path management for tmm
type Paths interface {
	ConfigDir() string
	DataDir() string
	StateDir() string

	ConfigFilePath() string
	LogFilePath() string

	GamesDir() string
	GameRecordPath(gameID string) string
	GameProfileDir(gameID string) string
	GameWorkDir(gameID string) string

	LedgersDir() string
	LedgerPath(gameID string) string
}

type paths struct {
	config string
	data   string
	state  string
}

// New creates a new Paths instance. Directories come from the TMM_*
// environment overrides when set, falling back to the XDG base dirs.
func New() (Paths, error) {
	p := &paths{}

	if dir := os.Getenv(EnvTmmConfigDir); dir != "" {
		p.config = dir
	} else {
		p.config = filepath.Join(xdg.ConfigHome, TmmDirName)
	}

	if dir := os.Getenv(EnvTmmDataDir); dir != "" {
		p.data = dir
	} else {
		p.data = filepath.Join(xdg.DataHome, TmmDirName)
	}

	if dir := os.Getenv(EnvTmmStateDir); dir != "" {
		p.state = dir
	} else {
		p.state = filepath.Join(xdg.StateHome, TmmDirName)
	}

	for _, dir := range []*string{&p.config, &p.data, &p.state} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileAccess,
				"failed to resolve absolute path for %s", *dir)
		}
		*dir = abs
	}

	return p, nil
}

func (p *paths) ConfigDir() string { return p.config }
func (p *paths) DataDir() string   { return p.data }
func (p *paths) StateDir() string  { return p.state }

func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.config, ConfigFileName)
}

func (p *paths) LogFilePath() string {
	return filepath.Join(p.state, LogFileName)
}

func (p *paths) GamesDir() string {
	return filepath.Join(p.config, GamesDirName)
}

func (p *paths) GameRecordPath(gameID string) string {
	return filepath.Join(p.GamesDir(), gameID+".json")
}

func (p *paths) GameProfileDir(gameID string) string {
	return filepath.Join(p.data, ProfilesDirName, gameID)
}

func (p *paths) GameWorkDir(gameID string) string {
	return filepath.Join(p.data, WorkDirName, gameID)
}

func (p *paths) LedgersDir() string {
	return filepath.Join(p.state, LedgersDirName)
}

func (p *paths) LedgerPath(gameID string) string {
	return filepath.Join(p.LedgersDir(), gameID+".json")
}
