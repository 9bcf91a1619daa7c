// Package track implements lease-based execution tracking for many
// independent tasks stored in a conditional-write item store.
//
// Each task type gets one Config (five status codes, per-status shard
// counts, retry limit, lease expiry) and one Tracker bound to a store
// backend. Workers call Tracker.Start, which acquires an exclusive lease
// with a single conditional write, runs the caller's body, and commits
// exactly one terminal transition on every exit path:
//
//	pending ──▶ in_progress ──▶ succeeded
//	   ▲             │
//	   │             ▼
//	 (re-lease)    failed ──(retry == max)──▶ ignored
//
// Mutual exclusion comes entirely from the store's conditional writes;
// expired leases are reclaimable by any worker, so a crashed worker blocks
// a task for at most the lease duration.
package track
