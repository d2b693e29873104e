// Package harness runs ingestion scenarios against a fresh archive.
//
// A scenario imports one or more dump snapshots, each as its own import
// run, and then checks the resulting archive.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: trail_growth
//	description: "A reply added to the trail archives the old trail"
//	workers: 1
//	runs:
//	  - snapshot: 0
//	    batches:
//	      - file: alice/1.json
//	        dump:
//	          blog: { name: alice }
//	          posts:
//	            - { id: "100", type: text, blog: { name: alice }, timestamp: 1700000000 }
//	    links:
//	      - { from: alice, to: alicealt, note: "same person" }
//	assertions:
//	  - type: row_count
//	    table: posts
//	    count: 1
//	  - type: run_stats
//	    run: 1
//	    expect: { new_posts: 1 }
//	  - type: history
//	    source_id: "100"
//	    run: 2
//	    fields: [trail]
//
// Each batch is written as a dump file into a snapshot directory whose
// files all carry the snapshot's modification time (snapshot n is n hours
// after testutil.SnapshotEpoch), and the directory is imported with the
// same runner the CLI uses. A batch with raw instead of dump is written
// verbatim, which is how malformed dumps are exercised.
//
// # Assertion Types
//
//   - row_count: number of rows in a table, optionally filtered by where
//   - final_state: exactly one row matches where and carries expect
//   - run_stats: counters of the n-th run step (1-based)
//   - history: the fields a run archived on a post, or no history at all
//
// Every scenario runs in its own temporary database with fixed batch
// tokens, so golden snapshots are reproducible.
package harness
