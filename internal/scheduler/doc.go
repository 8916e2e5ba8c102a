// Package scheduler decides when the advisor runs.
//
// RunGuard allows at most one pipeline at a time and rejects (never
// queues) overlapping triggers. Daily computes timezone-correct daily
// fire times and suppresses a second delivery on the same local day
// using a persisted date stamp. Periodic drives the analysis interval.
package scheduler
