// Package sqlite implements the Larder storage engine on SQLite: the
// connection owner, repositories, the change notifier, model limits, and the
// migration ledger.
// See docs/ARCHITECTURE.md § System Components.
package sqlite
