// Package testutil provides shared helpers for tmm tests: temp game
// profiles, mod tree builders and an error-injecting filesystem for
// partial-failure scenarios.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmm-manager/tmm/pkg/types"
)

// NewGame builds a game profile rooted in a fresh temp directory,
// with the install, profile and work directories created.
func NewGame(t *testing.T, fs types.FS) *types.Game {
	t.Helper()

	base := t.TempDir()
	game := &types.Game{
		ID:          "testgame",
		Name:        "Test Game",
		InstallPath: filepath.Join(base, "game"),
		ProfilePath: filepath.Join(base, "profile"),
		WorkPath:    filepath.Join(base, "work"),
		AddedAt:     time.Now().UTC(),
	}

	for _, dir := range []string{
		game.InstallPath,
		game.ProfilePath,
		game.ModsDir(),
		game.DownloadsDir(),
		game.WorkPath,
	} {
		require.NoError(t, fs.MkdirAll(dir, 0755))
	}
	return game
}

// WriteTree materializes the given relative-path → content mapping
// under root, creating parent directories as needed.
func WriteTree(t *testing.T, fs types.FS, root string, files map[string]string) {
	t.Helper()

	require.NoError(t, fs.MkdirAll(root, 0755))
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, fs.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, fs.WriteFile(full, []byte(content), 0644))
	}
}

// ReadTree returns every regular file below root as a relative-path
// → content mapping, slash-separated. Useful for byte-identical
// directory comparisons.
func ReadTree(t *testing.T, fs types.FS, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	var walk func(dir, rel string)
	walk = func(dir, rel string) {
		entries, err := fs.ReadDir(dir)
		require.NoError(t, err)
		for _, entry := range entries {
			childRel := entry.Name()
			if rel != "" {
				childRel = rel + "/" + entry.Name()
			}
			if entry.IsDir() {
				walk(filepath.Join(dir, entry.Name()), childRel)
				continue
			}
			data, err := fs.ReadFile(filepath.Join(dir, entry.Name()))
			require.NoError(t, err)
			out[childRel] = string(data)
		}
	}
	walk(root, "")
	return out
}
