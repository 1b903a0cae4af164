package cron

import "time"

// Job is a pending trigger.
type Job struct {
	// Name identifies the job; Remove and the fire callback use it.
	Name string
	// At is when the job fires next.
	At time.Time
	// Expr is a cron expression for recurring jobs. Empty means one-shot.
	Expr string
}
