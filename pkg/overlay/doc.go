// Package overlay materializes a resolved virtual tree into a game
// directory and reverses it exactly. The engine never mutates
// original game data destructively: files a mod would overwrite are
// moved aside first and restored on undeploy, and every applied
// action is recorded in the deployment ledger before the deploy is
// reported successful.
//
// Ledger protocol: the planned operation batch is recorded
// (unconfirmed) before any file is touched, the confirmation marker
// is written only after every operation in the batch completed. A
// crash in between leaves an unconfirmed ledger, which marks the
// directory as needing a recovery undeploy before the next deploy.
package overlay
