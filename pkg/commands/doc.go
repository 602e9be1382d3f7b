// Package commands is the orchestration layer between the CLI (or a
// future IPC shell) and the OFS subsystems. Each command wires the
// mod store, load order, resolver, ledger and overlay engine for one
// game and runs a single user-level operation.
package commands
