// Package store provides SQLite-backed durable storage for trailkeep.
//
// The store holds the reconciled archive:
//   - Account names, tags and languages: created lazily, never deleted
//   - Contents: body revisions, UNIQUE(source_id, version)
//   - Posts: mutated in place by reconciliation, history kept as JSON
//   - Join rows (post_contents, post_tags, post_resources): one row per slot
//   - Identity edges: append-only, UNIQUE(kind, source_name_id, dest_name_id, run_id)
//   - Import runs and batches: the run ledger
//
// # Write Patterns
//
// Every dedup insert is conflict-then-select: INSERT ... ON CONFLICT DO
// NOTHING, then RowsAffected decides between LastInsertId and a SELECT of
// the existing row. No pre-check locking is needed.
//
// All JSON columns are written with ir canonical JSON so two equal values
// are equal bytes. Queries that return lists are ordered by position or id.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: transactions from concurrent workers serialize
package store
