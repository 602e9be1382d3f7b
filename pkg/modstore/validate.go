package modstore

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/tmm-manager/tmm/pkg/errors"
)

// validateTree rejects extracted trees that could write outside the
// mod root once installed or deployed: absolute symlink targets and
// parent-directory escapes. The tree root itself must exist and be a
// directory.
func (s *Store) validateTree(root string) error {
	info, err := s.fs.Stat(root)
	if err != nil {
		return errors.Wrapf(err, errors.ErrModInvalidTree, "mod tree %s is not accessible", root)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrModInvalidTree, "mod tree %s is not a directory", root)
	}

	return s.validateDir(root, root)
}

func (s *Store) validateDir(root, dir string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrModInvalidTree, "failed to read %s", dir)
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		if entry.Type()&fs.ModeSymlink != 0 {
			if err := s.validateSymlink(root, full); err != nil {
				return err
			}
			continue
		}
		if entry.IsDir() {
			if err := s.validateDir(root, full); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSymlink ensures a symlink stays inside the mod tree.
func (s *Store) validateSymlink(root, link string) error {
	target, err := s.fs.Readlink(link)
	if err != nil {
		return errors.Wrapf(err, errors.ErrModInvalidTree, "failed to read symlink %s", link)
	}

	if filepath.IsAbs(target) {
		return errors.Newf(errors.ErrModInvalidTree,
			"symlink %s has an absolute target %s", link, target).
			WithDetail("link", link).
			WithDetail("target", target)
	}

	resolved := filepath.Clean(filepath.Join(filepath.Dir(link), target))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Newf(errors.ErrModInvalidTree,
			"symlink %s escapes the mod tree (target %s)", link, target).
			WithDetail("link", link).
			WithDetail("target", target)
	}
	return nil
}
