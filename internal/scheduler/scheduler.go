// Package scheduler asks for folder refreshes on a timer. It never talks to
// the server itself; the refresher decides when and how the request runs.
package scheduler

import (
	"context"
	"time"
)

// Scheduler triggers refreshes until stopped.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval between two rounds of requests.
	Interval time.Duration

	// Folders to refresh each round. Empty means the folder on screen.
	Folders []string

	// Immediate fires the first round on Start instead of after Interval.
	Immediate bool
}

// Refresher is what the scheduler asks for a folder refresh. An empty
// folder means the one the user is looking at.
type Refresher interface {
	RequestRefresh(ctx context.Context, folder string) error
}
