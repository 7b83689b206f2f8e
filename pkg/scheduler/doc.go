/*
Package scheduler provides the two ports.Scheduler implementations used by Journey.

Loop runs tasks on goroutines against the wall clock and is what the CLI uses.
Virtual keeps its own clock that only moves when a test calls Advance, which makes
periodic trigger sources fully deterministic under test.
*/
package scheduler
