// Package types defines the core data model shared across tmm:
// mods, load order entries, the resolved virtual tree, deployment
// operations, and game profiles. It also defines the FS interface
// that abstracts filesystem access for testing.
//
// Types here are plain data. Behavior lives in the owning packages
// (modstore, loadorder, resolver, overlay, ledger).
package types
