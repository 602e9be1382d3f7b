// Package ledger persists the deployment ledger: the durable record
// of exactly which overlay operations were applied to a game
// directory. The ledger is the crash-recovery anchor, so writes go
// through a temp file with fsync and an atomic rename, and the
// confirmation marker is only set after a deploy batch fully
// completed. An unconfirmed ledger on load means a deploy was
// interrupted and the directory needs a recovery undeploy.
package ledger

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/paths"
	"github.com/tmm-manager/tmm/pkg/types"
)

// Batch is one recorded deployment for a game directory.
type Batch struct {
	BatchID   string          `json:"batch_id"`
	GameID    string          `json:"game_id"`
	TargetDir string          `json:"target_dir"`
	Technique types.Technique `json:"technique"`
	CreatedAt time.Time       `json:"created_at"`

	// Confirmed is written last: a ledger without it records a deploy
	// that never completed.
	Confirmed bool `json:"confirmed"`

	// Mods lists the deployed mod set for in-use checks.
	Mods []types.ModID `json:"mods"`

	Operations []types.DeployedOperation `json:"operations"`
}

// Service stores one ledger file per game under the tmm state dir.
// The ledger works on the real filesystem directly: durability needs
// fsync, which the FS abstraction deliberately does not expose.
type Service struct {
	paths paths.Paths
}

// NewService creates a ledger service.
func NewService(p paths.Paths) *Service {
	return &Service{paths: p}
}

// Record durably writes an unconfirmed batch. It must complete
// before the deploy that produced the batch reports success.
func (s *Service) Record(batch *Batch) error {
	batch.Confirmed = false
	return s.write(batch)
}

// Confirm marks the game's recorded batch as fully applied.
func (s *Service) Confirm(gameID string) error {
	batch, err := s.Load(gameID)
	if err != nil {
		return err
	}
	if batch == nil {
		return errors.Newf(errors.ErrInternal, "no ledger to confirm for game %q", gameID)
	}
	batch.Confirmed = true
	return s.write(batch)
}

// Load returns the recorded batch for a game, or nil when the game
// directory is clean. An unreadable or inconsistent ledger is
// surfaced as ErrLedgerCorrupt, never silently dropped.
func (s *Service) Load(gameID string) (*Batch, error) {
	data, err := os.ReadFile(s.paths.LedgerPath(gameID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to read ledger for game %q", gameID)
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, errors.Wrapf(err, errors.ErrLedgerCorrupt,
			"ledger for game %q is unreadable", gameID)
	}
	if batch.GameID != gameID || batch.BatchID == "" {
		return nil, errors.Newf(errors.ErrLedgerCorrupt,
			"ledger for game %q is inconsistent", gameID).
			WithDetail("recorded_game", batch.GameID)
	}
	return &batch, nil
}

// Clear removes the game's ledger. Clearing a clean game is a no-op.
func (s *Service) Clear(gameID string) error {
	err := os.Remove(s.paths.LedgerPath(gameID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.ErrFileAccess,
			"failed to clear ledger for game %q", gameID)
	}
	return nil
}

// IsModDeployed reports whether the mod is part of the game's
// recorded deployment (confirmed or not).
func (s *Service) IsModDeployed(gameID string, id types.ModID) (bool, error) {
	batch, err := s.Load(gameID)
	if err != nil {
		return false, err
	}
	if batch == nil {
		return false, nil
	}
	for _, m := range batch.Mods {
		if m == id {
			return true, nil
		}
	}
	return false, nil
}

// write persists the batch with write-ahead durability: temp file,
// fsync, atomic rename, directory fsync.
func (s *Service) write(batch *Batch) error {
	dir := s.paths.LedgersDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create ledgers directory")
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode ledger")
	}

	tmp, err := os.CreateTemp(dir, "ledger-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrFileCreate, "failed to create temp ledger file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.ErrFileCreate, "failed to write ledger")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.ErrFileCreate, "failed to sync ledger")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrFileCreate, "failed to close temp ledger file")
	}

	final := s.paths.LedgerPath(batch.GameID)
	if err := os.Rename(tmpName, final); err != nil {
		return errors.Wrap(err, errors.ErrFileCreate, "failed to replace ledger")
	}
	syncDir(dir)

	logger := logging.GetLogger("ledger")
	logger.Debug().
		Str("game", batch.GameID).
		Str("batch", batch.BatchID).
		Bool("confirmed", batch.Confirmed).
		Int("operations", len(batch.Operations)).
		Msg("Ledger written")
	return nil
}

// syncDir makes the rename itself durable. Failure is non-fatal on
// filesystems that do not support directory fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
