// Package scheduler runs one Runner per configured task and supervises them.
//
// A runner loops through computing the next occurrence, waiting for it,
// firing (post a message and open a thread on it), optional pin bookkeeping,
// and a cooldown. A permanent firing failure halts only that task; other
// firing failures skip the occurrence. Pin and ledger failures are logged and
// the loop continues.
package scheduler
