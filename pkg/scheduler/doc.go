// Package scheduler drives pipeline runs for the daemon.
//
// Cron triggers start the scheduled Instagram run and the Facebook groups
// run, and a short poll claims runs an operator requested through the CLI.
// Each platform has a single-slot semaphore, so a trigger that fires while
// its platform is still busy is skipped rather than overlapped, while the
// other platform keeps working.
package scheduler
