// Package cron fires named jobs at wall-clock times, once or on a cron
// expression. A single goroutine keeps the pending jobs in a min-heap
// ordered by trigger time and never sleeps longer than a minute, so clock
// steps and system sleep only delay a job until the next wakeup.
//
// The bundle command line uses it to re-run the version check of a
// running manager on a schedule.
package cron
