package types

import (
	"path/filepath"
	"sort"
	"time"
)

// ModID is the stable identifier of an installed mod. It is unique
// within a game profile and derived from the mod's directory name.
type ModID string

// Mod describes one installed mod. Mods are owned by the mod store:
// they are created on install and destroyed only by explicit
// uninstall.
type Mod struct {
	ID          ModID     `toml:"id" json:"id"`
	Name        string    `toml:"name" json:"name"`
	Root        string    `toml:"-" json:"root"`
	InstalledAt time.Time `toml:"installed_at" json:"installed_at"`
}

// LoadOrderEntry is one position in a game's load order. Rank is the
// entry's index in the ordered sequence; later entries win path
// conflicts ("last loaded overrides").
type LoadOrderEntry struct {
	ModID   ModID `yaml:"mod" json:"mod"`
	Enabled bool  `yaml:"enabled" json:"enabled"`
}

// VirtualPathEntry records, for one relative path, which mod wins the
// path and every other enabled mod that also provides it. Shadowed is
// ordered by ascending priority: the most recently displaced loser is
// last.
type VirtualPathEntry struct {
	Path     string
	Winner   ModID
	Shadowed []ModID
}

// VirtualTree is the resolved view of a load order over a mod store:
// one winning mod per relative path. It is recomputed on every
// resolve call and never mutated incrementally. Entries are keyed by
// a conflict key, which equals the path except when the resolver
// folds case for case-insensitive target conventions; the entry's
// Path always carries the winning mod's original spelling.
type VirtualTree struct {
	entries map[string]*VirtualPathEntry
	keys    []string
	sorted  bool
}

// NewVirtualTree returns an empty virtual tree.
func NewVirtualTree() *VirtualTree {
	return &VirtualTree{entries: make(map[string]*VirtualPathEntry)}
}

// Put records or overwrites the winner for a conflict key. The
// previous winner, if any, is appended to the key's shadowed list,
// and the entry adopts the new winner's path spelling.
func (t *VirtualTree) Put(key, path string, winner ModID) {
	if e, ok := t.entries[key]; ok {
		e.Shadowed = append(e.Shadowed, e.Winner)
		e.Winner = winner
		e.Path = path
		return
	}
	t.entries[key] = &VirtualPathEntry{Path: path, Winner: winner}
	t.keys = append(t.keys, key)
	t.sorted = false
}

// Get returns the entry for a conflict key, or nil.
func (t *VirtualTree) Get(key string) *VirtualPathEntry {
	return t.entries[key]
}

// Len returns the number of resolved paths.
func (t *VirtualTree) Len() int {
	return len(t.entries)
}

// Keys returns every conflict key in lexicographic order.
func (t *VirtualTree) Keys() []string {
	if !t.sorted {
		sort.Strings(t.keys)
		t.sorted = true
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Entries returns every entry in key order.
func (t *VirtualTree) Entries() []*VirtualPathEntry {
	out := make([]*VirtualPathEntry, 0, len(t.entries))
	for _, k := range t.Keys() {
		out = append(out, t.entries[k])
	}
	return out
}

// Conflicts returns the entries that have at least one shadowed mod,
// in key order.
func (t *VirtualTree) Conflicts() []*VirtualPathEntry {
	var out []*VirtualPathEntry
	for _, k := range t.Keys() {
		if e := t.entries[k]; len(e.Shadowed) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// OperationKind identifies one applied filesystem action in a deploy
// batch.
type OperationKind string

const (
	// OpPlace materialized a mod file at the target path.
	OpPlace OperationKind = "place"

	// OpBackupOriginal moved a pre-existing game file aside before a
	// mod file was placed over it. Undeploy restores it.
	OpBackupOriginal OperationKind = "backup-original"
)

// Technique is the materialization strategy used to place mod files
// inside the game directory.
type Technique string

const (
	// TechniqueCopy duplicates file bytes. Most portable; works
	// across filesystems.
	TechniqueCopy Technique = "copy"

	// TechniqueHardlink links against the mod store. Zero-copy but
	// requires the same filesystem and mod files that are never
	// edited in place.
	TechniqueHardlink Technique = "hardlink"

	// TechniqueSymlink places symlinks into the mod store.
	TechniqueSymlink Technique = "symlink"
)

// ValidTechnique reports whether s names a known technique.
func ValidTechnique(s string) bool {
	switch Technique(s) {
	case TechniqueCopy, TechniqueHardlink, TechniqueSymlink:
		return true
	}
	return false
}

// DeployedOperation is one recorded filesystem action. The ledger
// persists these in application order; undeploy reverses them in
// strict reverse order.
type DeployedOperation struct {
	Kind       OperationKind `json:"kind"`
	ModID      ModID         `json:"mod,omitempty"`
	RelPath    string        `json:"path"`
	Technique  Technique     `json:"technique,omitempty"`
	BackupPath string        `json:"backup_path,omitempty"`
	// CreatedDir is the topmost directory the operation had to
	// create under the game dir, recorded so undeploy can prune it.
	CreatedDir string `json:"created_dir,omitempty"`
}

// DeployResult reports a completed deploy, or the planned batch of a
// dry run.
type DeployResult struct {
	BatchID    string
	GameID     string
	Technique  Technique
	Operations []DeployedOperation
	Placed     int
	Displaced  int
	// DryRun is true when the batch was planned but not applied.
	DryRun bool
}

// UndeployResult reports a completed undeploy.
type UndeployResult struct {
	GameID   string
	Removed  int
	Restored int
	// NoOp is true when there was no deployment to reverse.
	NoOp bool
}

// Game is one managed game profile. InstallPath is the game's own
// directory (never mutated except by deploy/undeploy), ProfilePath
// holds tmm-owned state for the game (mods, downloads, load order)
// and WorkPath holds scratch space such as displaced-original
// backups.
type Game struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AppID       uint32    `json:"app_id,omitempty"`
	InstallPath string    `json:"install_path"`
	ProfilePath string    `json:"profile_path"`
	WorkPath    string    `json:"work_path"`
	AddedAt     time.Time `json:"added_at"`
}

// ModsDir returns the directory holding the game's installed mods.
func (g *Game) ModsDir() string {
	return filepath.Join(g.ProfilePath, "mods")
}

// DownloadsDir returns the directory mod archives are downloaded to.
func (g *Game) DownloadsDir() string {
	return filepath.Join(g.ProfilePath, "downloads")
}

// LoadOrderPath returns the game's load order file.
func (g *Game) LoadOrderPath() string {
	return filepath.Join(g.ProfilePath, "loadorder.yaml")
}

// BackupDir returns the directory displaced originals are moved to
// during deploy.
func (g *Game) BackupDir() string {
	return filepath.Join(g.WorkPath, "backup")
}
