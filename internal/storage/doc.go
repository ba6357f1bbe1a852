// Package storage persists the pin ledger: the id of the last message pinned
// for each task, so the next occurrence can unpin it after a restart.
//
// Drivers:
//   - "file": one <task>.pin file per task in a directory (default)
//   - "sqlite": a single SQLite database (modernc.org/sqlite, pure Go)
//   - "redis": one string key per task
package storage
