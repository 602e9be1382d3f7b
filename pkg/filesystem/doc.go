// Package filesystem provides implementations of the types.FS
// interface: the real OS filesystem for production and an
// afero-backed one for tests that need an in-memory tree.
package filesystem
